package model

import (
	"time"

	"github.com/stemsi/exstem-assessment/internal/assessment"
)

// SelectAnswerRequest selects an option label, or answers a short-answer
// question with free text.
type SelectAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,max=64"`
	Label      string `json:"label" binding:"omitempty,len=1,alpha"`
	Text       string `json:"text" binding:"omitempty,max=500"`
}

// GoToRequest moves the respondent to a question position.
type GoToRequest struct {
	Index *int `json:"index" binding:"required"`
}

// SessionView is the state returned by every session mutation.
type SessionView struct {
	assessment.State
	Guest bool `json:"guest"`
}

// ResultView is the graded outcome shown after submission.
type ResultView struct {
	AttemptID      string                  `json:"attempt_id"`
	AttemptNumber  int                     `json:"attempt_number"`
	Trigger        string                  `json:"trigger"`
	Result         assessment.ScoredResult `json:"result"`
	Explanations   map[string]string       `json:"explanations"`
	ElapsedSeconds int                     `json:"elapsed_seconds"`
	SubmittedAt    time.Time               `json:"submitted_at"`
	// PersistFailed is set when storing the attempt failed; the result above
	// is still authoritative for the respondent.
	PersistFailed bool `json:"persist_failed"`
	CanRetake     bool `json:"can_retake"`
}

// SessionEventType names a pushed session event.
type SessionEventType string

const (
	EventTick          SessionEventType = "tick"
	EventSubmitted     SessionEventType = "submitted"
	EventPersistFailed SessionEventType = "persist_failed"
	EventClosed        SessionEventType = "closed"
)

// SessionEvent is pushed to stream subscribers of a live session.
type SessionEvent struct {
	Type             SessionEventType `json:"type"`
	SessionID        string           `json:"session_id"`
	Phase            assessment.Phase `json:"phase"`
	RemainingSeconds int              `json:"remaining_seconds"`
	Result           *ResultView      `json:"result,omitempty"`
	Detail           string           `json:"detail,omitempty"`
}
