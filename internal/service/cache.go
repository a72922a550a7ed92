package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-assessment/internal/assessment"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// QuizCache holds published quizzes and their validated questions.
// Lookups report a miss with ok=false and a nil error.
type QuizCache interface {
	GetQuiz(ctx context.Context, quizID uuid.UUID) (*model.Quiz, bool, error)
	GetQuestions(ctx context.Context, quizID uuid.UUID) ([]assessment.Question, bool, error)
	Store(ctx context.Context, quiz *model.Quiz, questions []assessment.Question) error
	Invalidate(ctx context.Context, quizID uuid.UUID) error
}

// RedisQuizCache stores quiz metadata and questions as JSON strings.
type RedisQuizCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisQuizCache creates a cache whose entries expire after ttl (0 = never).
func NewRedisQuizCache(rdb *redis.Client, ttl time.Duration) *RedisQuizCache {
	return &RedisQuizCache{rdb: rdb, ttl: ttl}
}

func (c *RedisQuizCache) GetQuiz(ctx context.Context, quizID uuid.UUID) (*model.Quiz, bool, error) {
	var q model.Quiz
	ok, err := c.get(ctx, config.CacheKey.QuizMetaKey(quizID.String()), &q)
	if !ok || err != nil {
		return nil, false, err
	}
	return &q, true, nil
}

func (c *RedisQuizCache) GetQuestions(ctx context.Context, quizID uuid.UUID) ([]assessment.Question, bool, error) {
	var qs []assessment.Question
	ok, err := c.get(ctx, config.CacheKey.QuizQuestionsKey(quizID.String()), &qs)
	if !ok || err != nil {
		return nil, false, err
	}
	return qs, true, nil
}

// Store writes both entries atomically via pipeline.
func (c *RedisQuizCache) Store(ctx context.Context, quiz *model.Quiz, questions []assessment.Question) error {
	metaJSON, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	id := quiz.ID.String()
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.QuizMetaKey(id), metaJSON, c.ttl)
	pipe.Set(ctx, config.CacheKey.QuizQuestionsKey(id), questionsJSON, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}
	return nil
}

func (c *RedisQuizCache) Invalidate(ctx context.Context, quizID uuid.UUID) error {
	id := quizID.String()
	return c.rdb.Del(ctx, config.CacheKey.QuizMetaKey(id), config.CacheKey.QuizQuestionsKey(id)).Err()
}

func (c *RedisQuizCache) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// A corrupt entry is treated as a miss and overwritten by the next warm.
		return false, nil
	}
	return true, nil
}
