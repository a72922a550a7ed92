package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-assessment/internal/assessment"
	"github.com/stemsi/exstem-assessment/internal/config"
)

const attemptCounterTTL = 7 * 24 * time.Hour

// AttemptCounter tracks how many attempts a respondent has started on a quiz.
type AttemptCounter interface {
	Used(ctx context.Context, respondentID string, quizID uuid.UUID) (int, error)
	// Claim reserves the next attempt number, failing with
	// assessment.ErrAttemptLimitExceeded once maxAttempts are taken.
	// maxAttempts <= 0 means unlimited.
	Claim(ctx context.Context, respondentID string, quizID uuid.UUID, maxAttempts int) (int, error)
}

// AttemptCountStore is the source of truth behind the Redis mirror.
type AttemptCountStore interface {
	LastAttemptNo(ctx context.Context, respondentID string, quizID uuid.UUID) (int, error)
}

// claimAttemptScript increments the counter unless that would pass the
// limit. Returns the claimed number or -1.
var claimAttemptScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
local limit = tonumber(ARGV[1])
if limit > 0 and n > limit then
	redis.call("DECR", KEYS[1])
	return -1
end
redis.call("EXPIRE", KEYS[1], ARGV[2])
return n
`)

// RedisAttemptCounter mirrors the claimed attempt count in Redis. A miss
// falls back to the highest attempt number stored in PostgreSQL and
// self-heals the key.
type RedisAttemptCounter struct {
	rdb   *redis.Client
	store AttemptCountStore
}

// NewRedisAttemptCounter creates a new RedisAttemptCounter.
func NewRedisAttemptCounter(rdb *redis.Client, store AttemptCountStore) *RedisAttemptCounter {
	return &RedisAttemptCounter{rdb: rdb, store: store}
}

func (c *RedisAttemptCounter) Used(ctx context.Context, respondentID string, quizID uuid.UUID) (int, error) {
	key := config.CacheKey.RespondentAttemptsKey(respondentID, quizID.String())

	val, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		n, convErr := strconv.Atoi(val)
		if convErr == nil {
			return n, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis error getting attempt count: %w", err)
	}

	n, err := c.store.LastAttemptNo(ctx, respondentID, quizID)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	// SetNX keeps a claim that raced us.
	_ = c.rdb.SetNX(ctx, key, n, attemptCounterTTL).Err()
	return n, nil
}

// Claim seeds the key when missing, then claims atomically so concurrent
// sessions of one respondent cannot pass the limit together.
func (c *RedisAttemptCounter) Claim(ctx context.Context, respondentID string, quizID uuid.UUID, maxAttempts int) (int, error) {
	if _, err := c.Used(ctx, respondentID, quizID); err != nil {
		return 0, err
	}
	key := config.CacheKey.RespondentAttemptsKey(respondentID, quizID.String())

	n, err := claimAttemptScript.Run(ctx, c.rdb, []string{key}, maxAttempts, int(attemptCounterTTL.Seconds())).Int()
	if err != nil {
		return 0, fmt.Errorf("claim attempt: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: all %d used", assessment.ErrAttemptLimitExceeded, maxAttempts)
	}
	return n, nil
}

// attemptGate binds a counter to one respondent and quiz for a session.
type attemptGate struct {
	counter      AttemptCounter
	respondentID string
	quizID       uuid.UUID
	maxAttempts  int
	timeout      time.Duration
}

func (g *attemptGate) Used() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	return g.counter.Used(ctx, g.respondentID, g.quizID)
}

func (g *attemptGate) Claim() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	return g.counter.Claim(ctx, g.respondentID, g.quizID, g.maxAttempts)
}
