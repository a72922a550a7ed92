package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/assessment"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------- in-memory stores ----------

type stubQuizStore struct {
	mu      sync.Mutex
	quizzes map[uuid.UUID]*model.Quiz
}

func (s *stubQuizStore) GetByID(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *stubQuizStore) ListPublished(context.Context) ([]model.Quiz, error) { return nil, nil }

func (s *stubQuizStore) Create(_ context.Context, q *model.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.ID = uuid.New()
	cp := *q
	s.quizzes[q.ID] = &cp
	return nil
}

func (s *stubQuizStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.QuizStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return repository.ErrNotFound
	}
	q.Status = status
	return nil
}

type stubQuestionStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]model.QuizQuestion
}

func (s *stubQuestionStore) ListByQuiz(_ context.Context, quizID uuid.UUID) ([]model.QuizQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.QuizQuestion(nil), s.rows[quizID]...), nil
}

func (s *stubQuestionStore) ReplaceAll(_ context.Context, quizID uuid.UUID, qs []model.QuizQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[quizID] = append([]model.QuizQuestion(nil), qs...)
	return nil
}

// missCache never holds anything so every read goes to the stores.
type missCache struct{}

func (missCache) GetQuiz(context.Context, uuid.UUID) (*model.Quiz, bool, error) {
	return nil, false, nil
}
func (missCache) GetQuestions(context.Context, uuid.UUID) ([]assessment.Question, bool, error) {
	return nil, false, nil
}
func (missCache) Store(context.Context, *model.Quiz, []assessment.Question) error { return nil }
func (missCache) Invalidate(context.Context, uuid.UUID) error                      { return nil }

type stubCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (s *stubCounter) Used(_ context.Context, respondentID string, quizID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[respondentID+"/"+quizID.String()], nil
}

func (s *stubCounter) Claim(_ context.Context, respondentID string, quizID uuid.UUID, maxAttempts int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := respondentID + "/" + quizID.String()
	if maxAttempts > 0 && s.counts[key] >= maxAttempts {
		return 0, assessment.ErrAttemptLimitExceeded
	}
	s.counts[key]++
	return s.counts[key], nil
}

type discardSink struct{}

func (discardSink) SaveAttempt(context.Context, *assessment.AttemptRecord) error { return nil }

func manualCountdown(onExpire func(), onTick func(int)) assessment.Countdown {
	return assessment.NewTimer(onExpire, assessment.WithManualTicks(), assessment.WithOnTick(onTick))
}

// ---------- server fixture ----------

type testServer struct {
	engine    *gin.Engine
	auth      *service.AuthService
	quizzes   *stubQuizStore
	questions *stubQuestionStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:            "handler-secret",
		JWTIssuer:            "exstem-test",
		JWTExpiry:            time.Hour,
		MaxUploadBytes:       1 << 20,
		GuestQuestionLimit:   5,
		DefaultPassThreshold: 70,
		SessionIdleTimeout:   time.Hour,
		PersistTimeout:       time.Second,
	}
	log := zerolog.Nop()

	ts := &testServer{
		auth:      service.NewAuthService(cfg),
		quizzes:   &stubQuizStore{quizzes: make(map[uuid.UUID]*model.Quiz)},
		questions: &stubQuestionStore{rows: make(map[uuid.UUID][]model.QuizQuestion)},
	}
	quizSvc := service.NewQuizService(ts.quizzes, ts.questions, missCache{}, cfg, log)
	sessionSvc := service.NewSessionService(quizSvc, &stubCounter{counts: make(map[string]int)}, discardSink{}, cfg, log,
		service.WithCountdownFactory(manualCountdown),
	)
	t.Cleanup(sessionSvc.Shutdown)
	importSvc := service.NewImportService(quizSvc, cfg.MaxUploadBytes, log)

	quizH := NewQuizHandler(quizSvc, sessionSvc)
	sessionH := NewSessionHandler(sessionSvc)
	importH := NewImportHandler(importSvc, cfg.MaxUploadBytes)
	wsH := NewWSHandler(sessionSvc, log, nil)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())

	api := r.Group("/api/v1", middleware.OptionalJWT(ts.auth))
	api.GET("/quizzes/:quiz_id", quizH.Intro)
	api.POST("/quizzes/:quiz_id/sessions", sessionH.CreateSession)

	sessions := api.Group("/sessions/:session_id")
	sessions.GET("", sessionH.GetState)
	sessions.DELETE("", sessionH.CloseSession)
	sessions.GET("/questions", sessionH.GetQuestions)
	sessions.POST("/start", sessionH.Start)
	sessions.POST("/submit", sessionH.Submit)
	sessions.POST("/retake", sessionH.Retake)
	sessions.PUT("/answers", sessionH.Answer)
	sessions.POST("/flags/:question_id", sessionH.ToggleFlag)
	sessions.PUT("/position", sessionH.GoTo)
	sessions.GET("/result", sessionH.GetResult)

	r.GET("/ws/v1/sessions/:session_id/stream", middleware.OptionalJWT(ts.auth), wsH.SessionStream)

	admin := r.Group("/api/v1/admin", middleware.RequireJWT(ts.auth))
	admin.POST("/quizzes", middleware.RequirePermission(model.PermissionQuizzesWrite), quizH.CreateQuiz)
	admin.POST("/quizzes/:quiz_id/publish", middleware.RequirePermission(model.PermissionQuizzesPublish), quizH.PublishQuiz)
	admin.POST("/quizzes/:quiz_id/questions/preview", middleware.RequirePermission(model.PermissionQuestionsWrite), importH.PreviewQuestions)
	admin.PUT("/quizzes/:quiz_id/questions/import", middleware.RequirePermission(model.PermissionQuestionsWrite), importH.ImportQuestions)

	ts.engine = r
	return ts
}

// seed stores a published quiz with n single-answer questions keyed A.
func (ts *testServer) seed(n int) *model.Quiz {
	q := &model.Quiz{
		ID:              uuid.New(),
		Title:           "Fractions",
		Kind:            model.QuizKindExam,
		DurationMinutes: 10,
		PassThreshold:   50,
		QuestionCount:   n,
		Status:          model.QuizStatusPublished,
	}
	rows := make([]model.QuizQuestion, n)
	for i := range rows {
		rows[i] = model.QuizQuestion{
			ID:             uuid.New(),
			QuizID:         q.ID,
			QuestionType:   string(assessment.QuestionTypeMultipleChoice),
			Prompt:         fmt.Sprintf("Question %d", i+1),
			Options:        []assessment.Option{{Label: "A", Text: "yes"}, {Label: "B", Text: "no"}},
			CorrectAnswers: assessment.NewAnswerSet("A"),
			OrderNum:       i,
		}
	}
	ts.quizzes.quizzes[q.ID] = q
	ts.questions.rows[q.ID] = rows
	return q
}

func (ts *testServer) token(t *testing.T, subject string, perms ...model.Permission) string {
	t.Helper()
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	tok, err := ts.auth.IssueToken(subject, model.RoleRespondent, names, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return tok
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.serve(t, req, token)
}

func (ts *testServer) serve(t *testing.T, req *http.Request, token string) (int, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", req.Method, req.URL.Path, w.Body.String(), err)
	}
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return v
}

func errCode(env envelope) response.ErrCode {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}
