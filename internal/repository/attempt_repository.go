package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-assessment/internal/model"
)

// AttemptRepository handles graded attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// LastAttemptNo returns the highest attempt number a respondent has stored
// for a quiz, or 0.
func (r *AttemptRepository) LastAttemptNo(ctx context.Context, respondentID string, quizID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(attempt_no), 0) FROM quiz_attempts WHERE respondent_id = $1 AND quiz_id = $2`,
		respondentID, quizID,
	).Scan(&n)
	return n, err
}

// ListByRespondent returns a respondent's attempt history, newest first.
func (r *AttemptRepository) ListByRespondent(ctx context.Context, respondentID string, limit, offset int) ([]model.AttemptSummary, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_attempts WHERE respondent_id = $1`, respondentID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.quiz_id, q.title, a.attempt_no, a.score_percent, a.passed,
		        a.elapsed_seconds, a.trigger, a.submitted_at
		 FROM quiz_attempts a
		 JOIN quizzes q ON q.id = a.quiz_id
		 WHERE a.respondent_id = $1
		 ORDER BY a.submitted_at DESC
		 LIMIT $2 OFFSET $3`, respondentID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.AttemptSummary
	for rows.Next() {
		var s model.AttemptSummary
		if err := rows.Scan(&s.ID, &s.QuizID, &s.QuizTitle, &s.AttemptNo, &s.ScorePercent, &s.Passed,
			&s.ElapsedSeconds, &s.Trigger, &s.SubmittedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// ListByQuiz returns every stored attempt on a quiz, newest first.
func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID, limit, offset int) ([]model.Attempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = $1`, quizID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, quiz_id, respondent_id, attempt_no, total_questions, correct_count,
		        score_percent, pass_threshold, passed, elapsed_seconds, trigger, answers, per_question,
		        started_at, submitted_at
		 FROM quiz_attempts
		 WHERE quiz_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2 OFFSET $3`, quizID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuizID, &a.RespondentID, &a.AttemptNo, &a.TotalQuestions,
			&a.CorrectCount, &a.ScorePercent, &a.PassThreshold, &a.Passed, &a.ElapsedSeconds, &a.Trigger,
			&a.Answers, &a.PerQuestion, &a.StartedAt, &a.SubmittedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Insert stores one attempt. Re-inserting the same attempt id is a no-op.
func (r *AttemptRepository) Insert(ctx context.Context, a *model.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quiz_attempts (id, session_id, quiz_id, respondent_id, attempt_no, total_questions,
		                            correct_count, score_percent, pass_threshold, passed, elapsed_seconds,
		                            trigger, answers, per_question, started_at, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.SessionID, a.QuizID, a.RespondentID, a.AttemptNo, a.TotalQuestions,
		a.CorrectCount, a.ScorePercent, a.PassThreshold, a.Passed, a.ElapsedSeconds,
		a.Trigger, a.Answers, a.PerQuestion, a.StartedAt, a.SubmittedAt,
	)
	return err
}

// attemptColumns holds one UNNEST array per column.
type attemptColumns struct {
	ids           []uuid.UUID
	sessionIDs    []string
	quizIDs       []uuid.UUID
	respondentIDs []*string
	attemptNos    []int32
	totals        []int32
	corrects      []int32
	scores        []int32
	thresholds    []int32
	passed        []bool
	elapsed       []int32
	triggers      []string
	answers       []string
	perQuestion   []string
	startedAts    []time.Time
	submittedAts  []time.Time
}

func buildAttemptColumns(batch []*model.Attempt) (*attemptColumns, error) {
	n := len(batch)
	c := &attemptColumns{
		ids:           make([]uuid.UUID, n),
		sessionIDs:    make([]string, n),
		quizIDs:       make([]uuid.UUID, n),
		respondentIDs: make([]*string, n),
		attemptNos:    make([]int32, n),
		totals:        make([]int32, n),
		corrects:      make([]int32, n),
		scores:        make([]int32, n),
		thresholds:    make([]int32, n),
		passed:        make([]bool, n),
		elapsed:       make([]int32, n),
		triggers:      make([]string, n),
		answers:       make([]string, n),
		perQuestion:   make([]string, n),
		startedAts:    make([]time.Time, n),
		submittedAts:  make([]time.Time, n),
	}
	for i, a := range batch {
		ans, err := json.Marshal(a.Answers)
		if err != nil {
			return nil, fmt.Errorf("attempt %s answers: %w", a.ID, err)
		}
		pq, err := json.Marshal(a.PerQuestion)
		if err != nil {
			return nil, fmt.Errorf("attempt %s per_question: %w", a.ID, err)
		}
		c.ids[i] = a.ID
		c.sessionIDs[i] = a.SessionID
		c.quizIDs[i] = a.QuizID
		c.respondentIDs[i] = a.RespondentID
		c.attemptNos[i] = int32(a.AttemptNo)
		c.totals[i] = int32(a.TotalQuestions)
		c.corrects[i] = int32(a.CorrectCount)
		c.scores[i] = int32(a.ScorePercent)
		c.thresholds[i] = int32(a.PassThreshold)
		c.passed[i] = a.Passed
		c.elapsed[i] = int32(a.ElapsedSeconds)
		c.triggers[i] = a.Trigger
		c.answers[i] = string(ans)
		c.perQuestion[i] = string(pq)
		c.startedAts[i] = a.StartedAt
		c.submittedAts[i] = a.SubmittedAt
	}
	return c, nil
}

// BulkInsert stores a batch of attempts in one statement using UNNEST.
func (r *AttemptRepository) BulkInsert(ctx context.Context, batch []*model.Attempt) error {
	if len(batch) == 0 {
		return nil
	}
	c, err := buildAttemptColumns(batch)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO quiz_attempts (id, session_id, quiz_id, respondent_id, attempt_no, total_questions,
		                           correct_count, score_percent, pass_threshold, passed, elapsed_seconds,
		                           trigger, answers, per_question, started_at, submitted_at)
		SELECT
			u.id, u.session_id, u.quiz_id, u.respondent_id, u.attempt_no, u.total_questions,
			u.correct_count, u.score_percent, u.pass_threshold, u.passed, u.elapsed_seconds,
			u.trigger, u.answers::jsonb, u.per_question::jsonb, u.started_at, u.submitted_at
		FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::uuid[],
			$4::text[],
			$5::int[],
			$6::int[],
			$7::int[],
			$8::int[],
			$9::int[],
			$10::bool[],
			$11::int[],
			$12::text[],
			$13::text[],
			$14::text[],
			$15::timestamptz[],
			$16::timestamptz[]
		) AS u (id, session_id, quiz_id, respondent_id, attempt_no, total_questions,
		        correct_count, score_percent, pass_threshold, passed, elapsed_seconds,
		        trigger, answers, per_question, started_at, submitted_at)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		c.ids, c.sessionIDs, c.quizIDs, c.respondentIDs, c.attemptNos, c.totals,
		c.corrects, c.scores, c.thresholds, c.passed, c.elapsed,
		c.triggers, c.answers, c.perQuestion, c.startedAts, c.submittedAts,
	)
	return err
}
