package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuizQuestionsKey returns the cache key for a quiz's validated question list
func (r *CacheKeyStruct) QuizQuestionsKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:questions", quizID)
}

// QuizMetaKey returns the cache key for a quiz's intro metadata
func (r *CacheKeyStruct) QuizMetaKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:meta", quizID)
}

// RespondentAttemptsKey returns the counter key of attempts a respondent has used on a quiz
func (r *CacheKeyStruct) RespondentAttemptsKey(respondentID, quizID string) string {
	return fmt.Sprintf("respondent:%s:quiz:%s:attempts", respondentID, quizID)
}

var CacheKey = NewCacheKeyStruct()
