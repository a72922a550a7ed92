package assessment

import (
	"fmt"
	"strings"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
)

// ParseQuestionType accepts both the canonical names and the labels shown
// in import forms ("multiple choice", "true/false", "short answer").
func ParseQuestionType(s string) (QuestionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "multiple_choice", "multiple choice", "mcq":
		return QuestionTypeMultipleChoice, true
	case "true_false", "true/false", "truefalse":
		return QuestionTypeTrueFalse, true
	case "short_answer", "short answer":
		return QuestionTypeShortAnswer, true
	}
	return "", false
}

// Labels used for true/false questions.
const (
	LabelTrue  = "A"
	LabelFalse = "B"
)

// Option is a single labelled answer choice.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is a single gradable question. For short-answer questions
// Options is empty and CorrectAnswers holds the normalised accepted text.
type Question struct {
	ID             string       `json:"id"`
	Type           QuestionType `json:"type"`
	Prompt         string       `json:"prompt"`
	Options        []Option     `json:"options,omitempty"`
	CorrectAnswers AnswerSet    `json:"correct_answers"`
	Explanation    string       `json:"explanation,omitempty"`
	Order          int          `json:"order"`
}

// IsMultiAnswer reports whether q accepts more than one label.
func IsMultiAnswer(q Question) bool {
	return len(q.CorrectAnswers) > 1
}

// HasOption reports whether label is one of q's options.
func (q Question) HasOption(label string) bool {
	for _, o := range q.Options {
		if o.Label == label {
			return true
		}
	}
	return false
}

// NewTrueFalseQuestion builds the two-option form used for true/false items.
func NewTrueFalseQuestion(id, prompt string, answer bool, explanation string) Question {
	correct := LabelFalse
	if answer {
		correct = LabelTrue
	}
	return Question{
		ID:     id,
		Type:   QuestionTypeTrueFalse,
		Prompt: prompt,
		Options: []Option{
			{Label: LabelTrue, Text: "True"},
			{Label: LabelFalse, Text: "False"},
		},
		CorrectAnswers: NewAnswerSet(correct),
		Explanation:    explanation,
	}
}

// NormalizeText is the comparison form of a short-answer response.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Validate checks the structural invariants every loaded question must hold.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("%w: empty prompt", ErrInvalidQuestion)
	}
	if len(q.CorrectAnswers) == 0 {
		return fmt.Errorf("%w: no correct answer", ErrInvalidQuestion)
	}

	if q.Type == QuestionTypeShortAnswer {
		return nil
	}

	seen := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		if len(o.Label) != 1 || o.Label[0] < 'A' || o.Label[0] > 'Z' {
			return fmt.Errorf("%w: bad option label %q", ErrInvalidQuestion, o.Label)
		}
		if strings.TrimSpace(o.Text) == "" {
			return fmt.Errorf("%w: option %s is empty", ErrInvalidQuestion, o.Label)
		}
		if _, dup := seen[o.Label]; dup {
			return fmt.Errorf("%w: duplicate option %s", ErrInvalidQuestion, o.Label)
		}
		seen[o.Label] = struct{}{}
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: fewer than 2 options", ErrInvalidQuestion)
	}
	for l := range q.CorrectAnswers {
		if _, ok := seen[l]; !ok {
			return fmt.Errorf("%w: correct answer %s is not an option", ErrInvalidQuestion, l)
		}
	}
	return nil
}

// ValidateAll validates a question list and rejects duplicate ids.
func ValidateAll(questions []Question) error {
	ids := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
		if _, dup := ids[q.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidQuestion, q.ID)
		}
		ids[q.ID] = struct{}{}
	}
	return nil
}
