package assessment

import "time"

// SubmitTrigger records what ended an attempt.
type SubmitTrigger string

const (
	TriggerManual  SubmitTrigger = "manual"
	TriggerExpired SubmitTrigger = "expired"
)

// AttemptRecord is the submittable outcome of one attempt, shaped for the
// result sink.
type AttemptRecord struct {
	ID             string               `json:"id"`
	SessionID      string               `json:"session_id"`
	QuizID         string               `json:"quiz_id"`
	RespondentID   *string              `json:"respondent_id"`
	AttemptNumber  int                  `json:"attempt_number"`
	Trigger        SubmitTrigger        `json:"trigger"`
	Result         ScoredResult         `json:"result"`
	Answers        map[string]AnswerSet `json:"answers"`
	StartedAt      time.Time            `json:"started_at"`
	SubmittedAt    time.Time            `json:"submitted_at"`
	ElapsedSeconds int                  `json:"elapsed_seconds"`
}

// AssemblyInput carries everything Assemble needs.
type AssemblyInput struct {
	ID            string
	SessionID     string
	QuizID        string
	RespondentID  *string
	AttemptNumber int
	Trigger       SubmitTrigger
	Result        ScoredResult
	Answers       map[string]AnswerSet
	StartedAt     time.Time
	SubmittedAt   time.Time
}

// Assemble packages a scored attempt. It performs no I/O and copies the
// answer map so later session changes cannot leak into the record.
func Assemble(in AssemblyInput) AttemptRecord {
	elapsed := int(in.SubmittedAt.Sub(in.StartedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	answers := make(map[string]AnswerSet, len(in.Answers))
	for id, set := range in.Answers {
		answers[id] = set.Clone()
	}

	var respondent *string
	if in.RespondentID != nil {
		id := *in.RespondentID
		respondent = &id
	}

	return AttemptRecord{
		ID:             in.ID,
		SessionID:      in.SessionID,
		QuizID:         in.QuizID,
		RespondentID:   respondent,
		AttemptNumber:  in.AttemptNumber,
		Trigger:        in.Trigger,
		Result:         in.Result,
		Answers:        answers,
		StartedAt:      in.StartedAt,
		SubmittedAt:    in.SubmittedAt,
		ElapsedSeconds: elapsed,
	}
}
