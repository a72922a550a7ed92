package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const (
	AttemptBatchSize    = 50
	AttemptBatchTimeout = 2 * time.Second
	AttemptPollTimeout  = 1 * time.Second
)

// AttemptStore writes graded attempts to PostgreSQL.
type AttemptStore interface {
	BulkInsert(ctx context.Context, batch []*model.Attempt) error
	Insert(ctx context.Context, a *model.Attempt) error
}

// AttemptWorker drains persist_attempts_queue into quiz_attempts.
type AttemptWorker struct {
	store AttemptStore
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewAttemptWorker(store AttemptStore, rdb *redis.Client, log zerolog.Logger) *AttemptWorker {
	return &AttemptWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "attempt_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *AttemptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AttemptWorker started")

	batch := make([]*model.Attempt, 0, AttemptBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= AttemptBatchSize || time.Since(lastFlush) >= AttemptBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, AttemptPollTimeout, config.WorkerKey.PersistAttemptsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			a, err := decodeAttempt(item[1])
			if err != nil {
				w.log.Error().Err(err).Msg("Invalid attempt payload, moving to dead queue")
				w.rdb.RPush(ctx, config.WorkerKey.DeadAttemptsQueue, item[1])
				continue
			}
			batch = append(batch, a)
		}
	}
}

func decodeAttempt(raw string) (*model.Attempt, error) {
	var a model.Attempt
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, err
	}
	if a.ID == uuid.Nil || a.QuizID == uuid.Nil {
		return nil, errors.New("attempt payload missing id or quiz_id")
	}
	return &a, nil
}

// ----------------------------------------------------------------
// Batch insert wrapper
// ----------------------------------------------------------------

func (w *AttemptWorker) flushSafe(ctx context.Context, batch []*model.Attempt) {
	if len(batch) == 0 {
		return
	}

	retry, dead := w.flush(ctx, batch)
	if len(retry) == 0 && len(dead) == 0 {
		return
	}

	pipe := w.rdb.Pipeline()
	for _, a := range retry {
		raw, _ := json.Marshal(a)
		pipe.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw)
	}
	for _, a := range dead {
		raw, _ := json.Marshal(a)
		pipe.RPush(ctx, config.WorkerKey.DeadAttemptsQueue, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("attempts", len(retry)+len(dead)).Msg("Requeue failed, attempts lost")
	}
}

// flush tries one bulk insert and falls back to row-by-row inserts. Rows
// that fail on a constraint are returned as dead; other failures are
// returned for retry.
func (w *AttemptWorker) flush(ctx context.Context, batch []*model.Attempt) (retry, dead []*model.Attempt) {
	err := w.store.BulkInsert(ctx, batch)
	if err == nil {
		w.log.Debug().Int("attempts", len(batch)).Msg("Attempt batch persisted")
		return nil, nil
	}
	w.log.Warn().Err(err).Int("attempts", len(batch)).Msg("Bulk attempt insert failed, using fallback")

	for _, a := range batch {
		err := w.store.Insert(ctx, a)
		switch {
		case err == nil:
		case isConstraintViolation(err):
			w.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Attempt rejected by database")
			dead = append(dead, a)
		default:
			w.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Insert failed, requeueing")
			retry = append(retry, a)
		}
	}
	return retry, dead
}

// isConstraintViolation matches SQLSTATE class 23 (integrity constraint).
func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23"
}
