package model

import (
	"time"

	"github.com/google/uuid"
)

// QuizKind distinguishes the places a quiz is taken from.
type QuizKind string

const (
	QuizKindExam       QuizKind = "EXAM"
	QuizKindCourseTest QuizKind = "COURSE_TEST"
	// QuizKindPreview sessions are never persisted and have no attempt limit.
	QuizKindPreview QuizKind = "PREVIEW"
)

// QuizStatus enumerates the possible states of a quiz.
type QuizStatus string

const (
	QuizStatusDraft     QuizStatus = "DRAFT"
	QuizStatusPublished QuizStatus = "PUBLISHED"
	QuizStatusArchived  QuizStatus = "ARCHIVED"
)

// Quiz represents a quiz entity.
type Quiz struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Kind            QuizKind  `json:"kind"`
	DurationMinutes int       `json:"duration_minutes"`
	PassThreshold   int       `json:"pass_threshold"`
	// MaxAttempts of 0 means unlimited.
	MaxAttempts        int        `json:"max_attempts"`
	GuestQuestionLimit int        `json:"guest_question_limit"`
	QuestionCount      int        `json:"question_count"`
	Status             QuizStatus `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Tracked reports whether attempts on this quiz are persisted and counted.
func (q *Quiz) Tracked() bool {
	return q.Kind != QuizKindPreview
}

// CreateQuizRequest is the payload for creating a new quiz.
type CreateQuizRequest struct {
	Title              string `json:"title" binding:"required,min=3,max=255"`
	Description        string `json:"description" binding:"omitempty,max=2000"`
	Kind               string `json:"kind" binding:"required,oneof=EXAM COURSE_TEST PREVIEW"`
	DurationMinutes    int    `json:"duration_minutes" binding:"required,min=1,max=480"`
	PassThreshold      *int   `json:"pass_threshold" binding:"omitempty,min=0,max=100"`
	MaxAttempts        int    `json:"max_attempts" binding:"min=0,max=100"`
	GuestQuestionLimit *int   `json:"guest_question_limit" binding:"omitempty,min=0,max=1000"`
}

// QuizIntro is what a respondent sees before starting.
type QuizIntro struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Kind            QuizKind  `json:"kind"`
	DurationMinutes int       `json:"duration_minutes"`
	PassThreshold   int       `json:"pass_threshold"`
	MaxAttempts     int       `json:"max_attempts"`
	QuestionCount   int       `json:"question_count"`
	// VisibleQuestions is lower than QuestionCount for guests over the limit.
	VisibleQuestions int  `json:"visible_questions"`
	AttemptsUsed     int  `json:"attempts_used"`
	Guest            bool `json:"guest"`
}
