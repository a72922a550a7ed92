package service

import "errors"

// Domain Errors
var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizNotPublished = errors.New("quiz status is not PUBLISHED")
	ErrNoQuestions      = errors.New("quiz has no questions, cannot publish/start")
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotSessionOwner  = errors.New("session belongs to another respondent")
	ErrResultNotReady   = errors.New("session has not been submitted")
	ErrFileTooLarge     = errors.New("uploaded file exceeds size limit")

	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)
