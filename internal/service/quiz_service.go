package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/assessment"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

// QuizStore is the quiz persistence used by QuizService.
type QuizStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
	ListPublished(ctx context.Context) ([]model.Quiz, error)
	Create(ctx context.Context, q *model.Quiz) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.QuizStatus) error
}

// QuestionStore is the question persistence used by QuizService.
type QuestionStore interface {
	ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.QuizQuestion, error)
	ReplaceAll(ctx context.Context, quizID uuid.UUID, questions []model.QuizQuestion) error
}

// QuizService handles quiz business logic and the Redis question cache.
type QuizService struct {
	quizzes   QuizStore
	questions QuestionStore
	cache     QuizCache
	cfg       *config.Config
	log       zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(
	quizzes QuizStore,
	questions QuestionStore,
	cache QuizCache,
	cfg *config.Config,
	log zerolog.Logger,
) *QuizService {
	return &QuizService{
		quizzes:   quizzes,
		questions: questions,
		cache:     cache,
		cfg:       cfg,
		log:       log.With().Str("component", "quiz_service").Logger(),
	}
}

// Get returns quiz metadata, preferring the cache.
func (s *QuizService) Get(ctx context.Context, quizID uuid.UUID) (*model.Quiz, error) {
	if q, ok, err := s.cache.GetQuiz(ctx, quizID); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Quiz cache read failed")
	} else if ok {
		return q, nil
	}

	q, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	return q, nil
}

// Load returns a quiz with its validated, ordered questions. Published
// quizzes are served from and written back to the cache.
func (s *QuizService) Load(ctx context.Context, quizID uuid.UUID) (*model.Quiz, []assessment.Question, error) {
	q, hit, err := s.cache.GetQuiz(ctx, quizID)
	if err == nil && hit {
		qs, ok, err := s.cache.GetQuestions(ctx, quizID)
		if err == nil && ok {
			return q, qs, nil
		}
	}

	q, err = s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrQuizNotFound
		}
		return nil, nil, fmt.Errorf("get quiz: %w", err)
	}
	qs, err := s.loadQuestions(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}

	if q.Status == model.QuizStatusPublished && len(qs) > 0 {
		if err := s.cache.Store(ctx, q, qs); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Quiz cache write failed")
		}
	}
	return q, qs, nil
}

// Create inserts a new quiz as DRAFT, filling unset settings from config.
func (s *QuizService) Create(ctx context.Context, req *model.CreateQuizRequest) (*model.Quiz, error) {
	q := &model.Quiz{
		Title:              req.Title,
		Description:        req.Description,
		Kind:               model.QuizKind(req.Kind),
		DurationMinutes:    req.DurationMinutes,
		PassThreshold:      s.cfg.DefaultPassThreshold,
		MaxAttempts:        req.MaxAttempts,
		GuestQuestionLimit: s.cfg.GuestQuestionLimit,
		Status:             model.QuizStatusDraft,
	}
	if req.PassThreshold != nil {
		q.PassThreshold = *req.PassThreshold
	}
	if req.GuestQuestionLimit != nil {
		q.GuestQuestionLimit = *req.GuestQuestionLimit
	}

	if err := s.quizzes.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}
	s.log.Info().Str("quiz_id", q.ID.String()).Str("kind", string(q.Kind)).Msg("Quiz created")
	return q, nil
}

// Publish marks a quiz PUBLISHED and warms its cache entry.
func (s *QuizService) Publish(ctx context.Context, quizID uuid.UUID) (*model.Quiz, error) {
	q, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	qs, err := s.loadQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.quizzes.UpdateStatus(ctx, quizID, model.QuizStatusPublished); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	q.Status = model.QuizStatusPublished
	q.QuestionCount = len(qs)

	if err := s.cache.Store(ctx, q, qs); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Quiz cache write failed")
	}

	s.log.Info().Str("quiz_id", quizID.String()).Int("questions", len(qs)).Msg("Quiz published")
	return q, nil
}

// ReplaceQuestions swaps a quiz's full question list and drops the stale
// cache entry. Published quizzes are re-warmed immediately.
func (s *QuizService) ReplaceQuestions(ctx context.Context, quizID uuid.UUID, questions []assessment.Question) error {
	q, err := s.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuizNotFound
		}
		return fmt.Errorf("get quiz: %w", err)
	}

	rows := make([]model.QuizQuestion, len(questions))
	for i, question := range questions {
		rows[i] = model.NewQuizQuestion(quizID, question)
		rows[i].OrderNum = i
	}
	if err := s.questions.ReplaceAll(ctx, quizID, rows); err != nil {
		return fmt.Errorf("replace questions: %w", err)
	}

	if err := s.cache.Invalidate(ctx, quizID); err != nil {
		s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Quiz cache invalidation failed")
	}
	if q.Status == model.QuizStatusPublished {
		q.QuestionCount = len(rows)
		if err := s.warm(ctx, q); err != nil {
			s.log.Warn().Err(err).Str("quiz_id", quizID.String()).Msg("Quiz cache rewarm failed")
		}
	}
	return nil
}

// PrewarmAllCaches loads all published quizzes into Redis on application startup.
func (s *QuizService) PrewarmAllCaches(ctx context.Context) error {
	quizzes, err := s.quizzes.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published quizzes: %w", err)
	}

	if len(quizzes) == 0 {
		s.log.Info().Msg("No published quizzes to prewarm")
		return nil
	}

	warmed := 0
	for i := range quizzes {
		if err := s.warm(ctx, &quizzes[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("quiz_id", quizzes[i].ID.String()).
				Msg("Failed to warm quiz, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(quizzes)).
		Msg("Prewarming complete")
	return nil
}

func (s *QuizService) warm(ctx context.Context, q *model.Quiz) error {
	qs, err := s.loadQuestions(ctx, q.ID)
	if err != nil {
		return err
	}
	if len(qs) == 0 {
		return ErrNoQuestions
	}
	return s.cache.Store(ctx, q, qs)
}

// loadQuestions reads stored rows and converts them to the grading model.
// Rows that no longer validate are skipped rather than failing the quiz.
func (s *QuizService) loadQuestions(ctx context.Context, quizID uuid.UUID) ([]assessment.Question, error) {
	rows, err := s.questions.ListByQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	qs := make([]assessment.Question, 0, len(rows))
	for i := range rows {
		q, err := rows[i].ToAssessment()
		if err == nil {
			err = q.Validate()
		}
		if err != nil {
			s.log.Warn().Err(err).Str("question_id", rows[i].ID.String()).Msg("Skipping invalid stored question")
			continue
		}
		qs = append(qs, q)
	}
	return qs, nil
}
