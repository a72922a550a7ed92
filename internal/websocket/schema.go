package websocket

import "github.com/stemsi/exstem-assessment/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionFlag   Action = "flag"
	ActionGoTo   Action = "goto"
	ActionSubmit Action = "submit"
	ActionState  Action = "state"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest selects a label or answers a short-answer question.
type AnswerRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	Label      string `json:"label,omitempty"`
	Text       string `json:"text,omitempty"`
}

// FlagRequest toggles the review marker on a question.
type FlagRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
}

// GoToRequest moves to a question position.
type GoToRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState  Event = "state"
	EventResult Event = "result"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

// StateResponse answers every accepted action with the new snapshot.
type StateResponse struct {
	Event Event              `json:"event"`
	State *model.SessionView `json:"state"`
}

// ResultResponse answers a submit action.
type ResultResponse struct {
	Event  Event             `json:"event"`
	Result *model.ResultView `json:"result"`
}

// SessionEventResponse forwards a pushed session event (tick, submitted,
// persist_failed, closed).
type SessionEventResponse struct {
	Event Event              `json:"event"`
	Data  model.SessionEvent `json:"data"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
