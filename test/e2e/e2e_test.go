//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	respondentID   = "e2e-respondent"
)

const questionsCSV = `question,a,b,c,answer,explanation
"What is 2+2?",3,4,5,B,Basic sums
Capital of France,Paris,Rome,Berlin,A,Paris is the capital
Largest planet,Mars,Jupiter,Venus,B,Jupiter is a gas giant
`

var (
	baseURL         string
	cfg             *config.Config
	adminToken      string
	respondentToken string
	quizID          string
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	cfg = config.Load()

	if err := cleanDatabase(); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	// Tokens come from the identity provider in production; mint them locally here.
	auth := service.NewAuthService(cfg)
	var err error
	if adminToken, err = auth.IssueToken("e2e-admin", model.RoleAdmin, model.PermissionStrings(), time.Hour); err != nil {
		fmt.Printf("issue admin token: %v\n", err)
		os.Exit(1)
	}
	if respondentToken, err = auth.IssueToken(respondentID, model.RoleRespondent, nil, time.Hour); err != nil {
		fmt.Printf("issue respondent token: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func cleanDatabase() error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	// Order matters due to FK.
	for _, table := range []string{"quiz_attempts", "quiz_questions", "quizzes"} {
		if _, err := conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("cleanup %s: %w", table, err)
		}
	}
	return nil
}

func TestE2EFlow(t *testing.T) {
	// Step 1: Create Quiz (Admin)
	t.Run("CreateQuiz", func(t *testing.T) {
		status, env := call(t, http.MethodPost, "/admin/quizzes", adminToken, map[string]any{
			"title":            "E2E Quiz",
			"kind":             "EXAM",
			"duration_minutes": 10,
			"pass_threshold":   60,
			"max_attempts":     1,
		})
		if status != http.StatusCreated {
			t.Fatalf("status %d: %+v", status, env.Error)
		}
		var quiz model.Quiz
		mustDecode(t, env, &quiz)
		quizID = quiz.ID.String()
		t.Logf("Quiz Created: %s", quizID)
	})

	// Step 2: Import Questions (Admin)
	t.Run("ImportQuestions", func(t *testing.T) {
		status, env := upload(t, fmt.Sprintf("/admin/quizzes/%s/questions/import", quizID), adminToken, "quiz.csv", questionsCSV)
		if status != http.StatusOK {
			t.Fatalf("status %d: %+v", status, env.Error)
		}
		var summary model.ImportSummary
		mustDecode(t, env, &summary)
		if summary.Imported != 3 {
			t.Fatalf("imported %d, want 3", summary.Imported)
		}
	})

	// Step 3: Publish Quiz (Admin)
	t.Run("PublishQuiz", func(t *testing.T) {
		status, env := call(t, http.MethodPost, fmt.Sprintf("/admin/quizzes/%s/publish", quizID), adminToken, nil)
		if status != http.StatusOK {
			t.Fatalf("status %d: %+v", status, env.Error)
		}
	})

	// Step 4: Guest Attempt (not persisted)
	t.Run("GuestAttempt", func(t *testing.T) {
		sessionID := openSession(t, "")
		answer(t, sessionID, "", 0, "B")
		result := submit(t, sessionID, "")
		if result.Result.CorrectCount != 1 {
			t.Fatalf("guest result = %+v", result.Result)
		}
	})

	// Step 5: Respondent Attempt and Attempt Limit
	t.Run("RespondentAttempt", func(t *testing.T) {
		sessionID := openSession(t, respondentToken)
		answer(t, sessionID, respondentToken, 0, "B")
		answer(t, sessionID, respondentToken, 1, "A")
		result := submit(t, sessionID, respondentToken)
		if result.Result.ScorePercent != 67 || !result.Result.Passed || result.CanRetake {
			t.Fatalf("result = %+v can_retake=%v", result.Result, result.CanRetake)
		}

		status, env := call(t, http.MethodPost, "/sessions/"+sessionID+"/retake", respondentToken, nil)
		if status != http.StatusForbidden || env.Error == nil || env.Error.Code != "ATTEMPT_LIMIT_EXCEEDED" {
			t.Fatalf("retake status %d: %+v", status, env.Error)
		}

		// A fresh session opens but cannot start once the limit is used up.
		status, env = call(t, http.MethodPost, fmt.Sprintf("/quizzes/%s/sessions", quizID), respondentToken, nil)
		if status != http.StatusCreated {
			t.Fatalf("new session after limit: status %d: %+v", status, env.Error)
		}
		var view model.SessionView
		mustDecode(t, env, &view)
		if view.AttemptsUsed != 1 {
			t.Fatalf("attempts_used = %d, want 1", view.AttemptsUsed)
		}
		status, env = call(t, http.MethodPost, "/sessions/"+view.SessionID+"/start", respondentToken, nil)
		if status != http.StatusForbidden || env.Error == nil || env.Error.Code != "ATTEMPT_LIMIT_EXCEEDED" {
			t.Fatalf("start after limit: status %d: %+v", status, env.Error)
		}
	})

	// Step 6: Attempt Counter in Redis
	t.Run("AttemptCounter", func(t *testing.T) {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			t.Fatalf("parse redis url: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		key := config.CacheKey.RespondentAttemptsKey(respondentID, quizID)
		n, err := rdb.Get(context.Background(), key).Int()
		if err != nil || n != 1 {
			t.Fatalf("counter %s = %d (%v), want 1", key, n, err)
		}
	})

	// Step 7: Attempt History (worker persisted)
	t.Run("AttemptHistory", func(t *testing.T) {
		deadline := time.Now().Add(15 * time.Second)
		for {
			status, env := call(t, http.MethodGet, "/me/attempts", respondentToken, nil)
			if status != http.StatusOK {
				t.Fatalf("status %d: %+v", status, env.Error)
			}
			var attempts []model.AttemptSummary
			mustDecode(t, env, &attempts)
			if len(attempts) == 1 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("attempt not persisted, got %d rows", len(attempts))
			}
			time.Sleep(500 * time.Millisecond)
		}

		status, env := call(t, http.MethodGet, fmt.Sprintf("/admin/quizzes/%s/attempts", quizID), adminToken, nil)
		if status != http.StatusOK {
			t.Fatalf("admin attempts status %d: %+v", status, env.Error)
		}
		var all []model.Attempt
		mustDecode(t, env, &all)
		if len(all) != 1 {
			t.Fatalf("admin sees %d attempts, want 1 (guest attempts are not stored)", len(all))
		}
	})

	// Step 8: Verify Permissions (Respondent tries Admin action)
	t.Run("VerifyPermissionFails", func(t *testing.T) {
		status, _ := call(t, http.MethodPost, "/admin/quizzes", respondentToken, map[string]any{})
		if status != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", status)
		}
	})
}

// Helpers

func openSession(t *testing.T, token string) string {
	t.Helper()
	status, env := call(t, http.MethodPost, fmt.Sprintf("/quizzes/%s/sessions", quizID), token, nil)
	if status != http.StatusCreated {
		t.Fatalf("create session status %d: %+v", status, env.Error)
	}
	var view model.SessionView
	mustDecode(t, env, &view)

	if status, env = call(t, http.MethodPost, "/sessions/"+view.SessionID+"/start", token, nil); status != http.StatusOK {
		t.Fatalf("start status %d: %+v", status, env.Error)
	}
	return view.SessionID
}

func answer(t *testing.T, sessionID, token string, index int, label string) {
	t.Helper()
	status, env := call(t, http.MethodGet, "/sessions/"+sessionID+"/questions", token, nil)
	if status != http.StatusOK {
		t.Fatalf("questions status %d: %+v", status, env.Error)
	}
	var questions []model.QuestionForRespondent
	mustDecode(t, env, &questions)

	status, env = call(t, http.MethodPut, "/sessions/"+sessionID+"/answers", token, map[string]string{
		"question_id": questions[index].ID,
		"label":       label,
	})
	if status != http.StatusOK {
		t.Fatalf("answer status %d: %+v", status, env.Error)
	}
}

func submit(t *testing.T, sessionID, token string) model.ResultView {
	t.Helper()
	status, env := call(t, http.MethodPost, "/sessions/"+sessionID+"/submit", token, nil)
	if status != http.StatusOK {
		t.Fatalf("submit status %d: %+v", status, env.Error)
	}
	var result model.ResultView
	mustDecode(t, env, &result)
	return result
}

func call(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(t, req, token)
}

func upload(t *testing.T, path, token, filename, content string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("question_type", "multiple_choice")
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPut, baseURL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(t, req, token)
}

func do(t *testing.T, req *http.Request, token string) (int, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	return resp.StatusCode, env
}

func mustDecode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}
