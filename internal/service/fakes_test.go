package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/assessment"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:            "test-secret",
		JWTIssuer:            "exstem-test",
		JWTExpiry:            time.Hour,
		GuestQuestionLimit:   5,
		DefaultPassThreshold: 70,
		SessionIdleTimeout:   30 * time.Minute,
		PersistTimeout:       time.Second,
	}
}

type memQuizStore struct {
	mu      sync.Mutex
	quizzes map[uuid.UUID]*model.Quiz
	gets    int
}

func newMemQuizStore() *memQuizStore {
	return &memQuizStore{quizzes: make(map[uuid.UUID]*model.Quiz)}
}

func (m *memQuizStore) GetByID(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	q, ok := m.quizzes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *memQuizStore) ListPublished(_ context.Context) ([]model.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Quiz
	for _, q := range m.quizzes {
		if q.Status == model.QuizStatusPublished {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (m *memQuizStore) Create(_ context.Context, q *model.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.ID = uuid.New()
	cp := *q
	m.quizzes[q.ID] = &cp
	return nil
}

func (m *memQuizStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.QuizStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return repository.ErrNotFound
	}
	q.Status = status
	return nil
}

type memQuestionStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]model.QuizQuestion
}

func newMemQuestionStore() *memQuestionStore {
	return &memQuestionStore{rows: make(map[uuid.UUID][]model.QuizQuestion)}
}

func (m *memQuestionStore) ListByQuiz(_ context.Context, quizID uuid.UUID) ([]model.QuizQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.QuizQuestion(nil), m.rows[quizID]...), nil
}

func (m *memQuestionStore) ReplaceAll(_ context.Context, quizID uuid.UUID, qs []model.QuizQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[quizID] = append([]model.QuizQuestion(nil), qs...)
	return nil
}

type memCache struct {
	mu          sync.Mutex
	quizzes     map[uuid.UUID]model.Quiz
	questions   map[uuid.UUID][]assessment.Question
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{
		quizzes:   make(map[uuid.UUID]model.Quiz),
		questions: make(map[uuid.UUID][]assessment.Question),
	}
}

func (m *memCache) GetQuiz(_ context.Context, id uuid.UUID) (*model.Quiz, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, false, nil
	}
	return &q, true, nil
}

func (m *memCache) GetQuestions(_ context.Context, id uuid.UUID) ([]assessment.Question, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs, ok := m.questions[id]
	return qs, ok, nil
}

func (m *memCache) Store(_ context.Context, q *model.Quiz, qs []assessment.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = *q
	m.questions[q.ID] = qs
	return nil
}

func (m *memCache) Invalidate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quizzes, id)
	delete(m.questions, id)
	m.invalidated++
	return nil
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemCounter() *memCounter { return &memCounter{counts: make(map[string]int)} }

func (m *memCounter) Used(_ context.Context, respondentID string, quizID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[respondentID+"/"+quizID.String()], nil
}

func (m *memCounter) Claim(_ context.Context, respondentID string, quizID uuid.UUID, maxAttempts int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := respondentID + "/" + quizID.String()
	if maxAttempts > 0 && m.counts[key] >= maxAttempts {
		return 0, assessment.ErrAttemptLimitExceeded
	}
	m.counts[key]++
	return m.counts[key], nil
}

type memSink struct {
	mu      sync.Mutex
	records []*assessment.AttemptRecord
	err     error
}

func (m *memSink) SaveAttempt(_ context.Context, rec *assessment.AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// seedQuiz stores a quiz with n single-answer questions whose key is A.
func seedQuiz(t *testing.T, quizzes *memQuizStore, questions *memQuestionStore, q model.Quiz, n int) *model.Quiz {
	t.Helper()
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	rows := make([]model.QuizQuestion, n)
	for i := range rows {
		rows[i] = model.QuizQuestion{
			ID:           uuid.New(),
			QuizID:       q.ID,
			QuestionType: string(assessment.QuestionTypeMultipleChoice),
			Prompt:       fmt.Sprintf("Question %d", i+1),
			Options: []assessment.Option{
				{Label: "A", Text: "right"},
				{Label: "B", Text: "wrong"},
			},
			CorrectAnswers: assessment.NewAnswerSet("A"),
			Explanation:    fmt.Sprintf("because %d", i+1),
			OrderNum:       i,
		}
	}
	q.QuestionCount = n
	quizzes.quizzes[q.ID] = &q
	questions.rows[q.ID] = rows
	return &q
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
