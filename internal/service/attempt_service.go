package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
)

// AttemptLister reads stored attempts.
type AttemptLister interface {
	ListByRespondent(ctx context.Context, respondentID string, limit, offset int) ([]model.AttemptSummary, int, error)
	ListByQuiz(ctx context.Context, quizID uuid.UUID, limit, offset int) ([]model.Attempt, int, error)
}

// AttemptService serves attempt history.
type AttemptService struct {
	attempts AttemptLister
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(attempts AttemptLister) *AttemptService {
	return &AttemptService{attempts: attempts}
}

// History lists a respondent's attempts, newest first.
func (s *AttemptService) History(ctx context.Context, respondentID string, page, perPage int) ([]model.AttemptSummary, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)

	rows, total, err := s.attempts.ListByRespondent(ctx, respondentID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if rows == nil {
		rows = []model.AttemptSummary{}
	}
	return rows, response.NewPagination(page, perPage, total), nil
}

// QuizAttempts lists every stored attempt on a quiz.
func (s *AttemptService) QuizAttempts(ctx context.Context, quizID uuid.UUID, page, perPage int) ([]model.Attempt, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)

	rows, total, err := s.attempts.ListByQuiz(ctx, quizID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if rows == nil {
		rows = []model.Attempt{}
	}
	return rows, response.NewPagination(page, perPage, total), nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
