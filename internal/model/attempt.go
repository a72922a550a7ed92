package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-assessment/internal/assessment"
)

// Attempt is a stored, graded quiz attempt.
type Attempt struct {
	ID             uuid.UUID                             `json:"id"`
	SessionID      string                                `json:"session_id"`
	QuizID         uuid.UUID                             `json:"quiz_id"`
	RespondentID   *string                               `json:"respondent_id"`
	AttemptNo      int                                   `json:"attempt_no"`
	TotalQuestions int                                   `json:"total_questions"`
	CorrectCount   int                                   `json:"correct_count"`
	ScorePercent   int                                   `json:"score_percent"`
	PassThreshold  int                                   `json:"pass_threshold"`
	Passed         bool                                  `json:"passed"`
	ElapsedSeconds int                                   `json:"elapsed_seconds"`
	Trigger        string                                `json:"trigger"`
	Answers        map[string]assessment.AnswerSet       `json:"answers"`
	PerQuestion    map[string]assessment.QuestionOutcome `json:"per_question"`
	StartedAt      time.Time                             `json:"started_at"`
	SubmittedAt    time.Time                             `json:"submitted_at"`
}

// AttemptFromRecord maps an assembled record onto the stored row.
func AttemptFromRecord(rec *assessment.AttemptRecord) (*Attempt, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, err
	}
	quizID, err := uuid.Parse(rec.QuizID)
	if err != nil {
		return nil, err
	}
	answers := rec.Answers
	if answers == nil {
		answers = map[string]assessment.AnswerSet{}
	}
	perQuestion := rec.Result.PerQuestion
	if perQuestion == nil {
		perQuestion = map[string]assessment.QuestionOutcome{}
	}
	return &Attempt{
		ID:             id,
		SessionID:      rec.SessionID,
		QuizID:         quizID,
		RespondentID:   rec.RespondentID,
		AttemptNo:      rec.AttemptNumber,
		TotalQuestions: rec.Result.TotalQuestions,
		CorrectCount:   rec.Result.CorrectCount,
		ScorePercent:   rec.Result.ScorePercent,
		PassThreshold:  rec.Result.PassThreshold,
		Passed:         rec.Result.Passed,
		ElapsedSeconds: rec.ElapsedSeconds,
		Trigger:        string(rec.Trigger),
		Answers:        answers,
		PerQuestion:    perQuestion,
		StartedAt:      rec.StartedAt,
		SubmittedAt:    rec.SubmittedAt,
	}, nil
}

// AttemptSummary is the history row shown to a respondent.
type AttemptSummary struct {
	ID             uuid.UUID `json:"id"`
	QuizID         uuid.UUID `json:"quiz_id"`
	QuizTitle      string    `json:"quiz_title"`
	AttemptNo      int       `json:"attempt_no"`
	ScorePercent   int       `json:"score_percent"`
	Passed         bool      `json:"passed"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Trigger        string    `json:"trigger"`
	SubmittedAt    time.Time `json:"submitted_at"`
}
