package model

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-assessment/internal/assessment"
)

// QuizQuestion is a stored question row.
type QuizQuestion struct {
	ID             uuid.UUID            `json:"id"`
	QuizID         uuid.UUID            `json:"quiz_id"`
	QuestionType   string               `json:"question_type"`
	Prompt         string               `json:"prompt"`
	Options        []assessment.Option  `json:"options"`
	CorrectAnswers assessment.AnswerSet `json:"correct_answers"`
	Explanation    string               `json:"explanation"`
	OrderNum       int                  `json:"order_num"`
}

// ToAssessment converts the row into the grading model.
func (q *QuizQuestion) ToAssessment() (assessment.Question, error) {
	qtype, ok := assessment.ParseQuestionType(q.QuestionType)
	if !ok {
		return assessment.Question{}, fmt.Errorf("question %s: unknown type %q", q.ID, q.QuestionType)
	}
	return assessment.Question{
		ID:             q.ID.String(),
		Type:           qtype,
		Prompt:         q.Prompt,
		Options:        q.Options,
		CorrectAnswers: q.CorrectAnswers,
		Explanation:    q.Explanation,
		Order:          q.OrderNum,
	}, nil
}

// NewQuizQuestion builds a row from a parsed question. Parsed ids are
// regenerated when they are not UUIDs.
func NewQuizQuestion(quizID uuid.UUID, q assessment.Question) QuizQuestion {
	id, err := uuid.Parse(q.ID)
	if err != nil {
		id = uuid.New()
	}
	options := q.Options
	if options == nil {
		options = []assessment.Option{}
	}
	return QuizQuestion{
		ID:             id,
		QuizID:         quizID,
		QuestionType:   string(q.Type),
		Prompt:         q.Prompt,
		Options:        options,
		CorrectAnswers: q.CorrectAnswers,
		Explanation:    q.Explanation,
		OrderNum:       q.Order,
	}
}

// QuestionForRespondent is a question without the correct answer.
type QuestionForRespondent struct {
	ID          string                  `json:"id"`
	Index       int                     `json:"index"`
	Type        assessment.QuestionType `json:"type"`
	Prompt      string                  `json:"prompt"`
	Options     []assessment.Option     `json:"options"`
	MultiAnswer bool                    `json:"multi_answer"`
}

// PublicQuestions strips grading data from questions.
func PublicQuestions(qs []assessment.Question) []QuestionForRespondent {
	out := make([]QuestionForRespondent, len(qs))
	for i, q := range qs {
		options := q.Options
		if options == nil {
			options = []assessment.Option{}
		}
		out[i] = QuestionForRespondent{
			ID:          q.ID,
			Index:       i,
			Type:        q.Type,
			Prompt:      q.Prompt,
			Options:     options,
			MultiAnswer: assessment.IsMultiAnswer(q),
		}
	}
	return out
}

// ImportQuestionsForm is the multipart form for question import and preview.
type ImportQuestionsForm struct {
	QuestionType string `form:"question_type" binding:"required"`
}

// ImportSummary reports a completed or previewed import.
type ImportSummary struct {
	QuizID    uuid.UUID             `json:"quiz_id"`
	Filename  string                `json:"filename"`
	Imported  int                   `json:"imported"`
	Skipped   int                   `json:"skipped"`
	Questions []assessment.Question `json:"questions,omitempty"`
}
