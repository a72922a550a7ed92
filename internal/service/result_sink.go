package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-assessment/internal/assessment"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// RedisResultSink hands submitted attempts to the attempt worker through
// the persist queue. PostgreSQL writes happen off the request path.
type RedisResultSink struct {
	rdb *redis.Client
}

// NewRedisResultSink creates a new RedisResultSink.
func NewRedisResultSink(rdb *redis.Client) *RedisResultSink {
	return &RedisResultSink{rdb: rdb}
}

// SaveAttempt implements assessment.ResultSink.
func (s *RedisResultSink) SaveAttempt(ctx context.Context, rec *assessment.AttemptRecord) error {
	attempt, err := model.AttemptFromRecord(rec)
	if err != nil {
		return fmt.Errorf("map attempt: %w", err)
	}
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue attempt: %w", err)
	}
	return nil
}
