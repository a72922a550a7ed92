package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-assessment/internal/assessment"
	"github.com/stemsi/exstem-assessment/internal/questionfile"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

type errMapping struct {
	err    error
	status int
	code   response.ErrCode
}

// errorTable maps domain errors to API responses, checked in order.
var errorTable = []errMapping{
	{service.ErrQuizNotFound, http.StatusNotFound, response.ErrQuizNotFound},
	{service.ErrQuizNotPublished, http.StatusForbidden, response.ErrQuizNotPublished},
	{service.ErrNoQuestions, http.StatusConflict, response.ErrNoQuestions},
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrNotSessionOwner, http.StatusForbidden, response.ErrNotSessionOwner},
	{service.ErrResultNotReady, http.StatusConflict, response.ErrResultNotReady},
	{service.ErrFileTooLarge, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
	{assessment.ErrSessionClosed, http.StatusGone, response.ErrSessionClosed},
	{assessment.ErrPhase, http.StatusConflict, response.ErrPhase},
	{assessment.ErrAttemptLimitExceeded, http.StatusForbidden, response.ErrAttemptLimitExceeded},
	{assessment.ErrUnknownQuestion, http.StatusUnprocessableEntity, response.ErrUnknownQuestion},
	{assessment.ErrUnknownOption, http.StatusUnprocessableEntity, response.ErrUnknownOption},
	{questionfile.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, response.ErrUnsupportedFormat},
	{questionfile.ErrEmptyResult, http.StatusUnprocessableEntity, response.ErrNoValidQuestions},
}

// classify returns the status and code for err. ok is false for unexpected
// errors, which map to 500.
func classify(err error) (status int, code response.ErrCode, ok bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code, true
		}
	}
	return http.StatusInternalServerError, response.ErrInternal, false
}

// fail writes the mapped error envelope. Unexpected errors are attached to
// the context for the request logger and never shown to the caller.
func fail(c *gin.Context, err error) {
	status, code, ok := classify(err)
	if !ok {
		_ = c.Error(err)
		response.Fail(c, status, code)
		return
	}
	response.FailWithDetail(c, status, code, err.Error())
}

func parseQuizID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// sessionID validates the path id without exposing whether it exists.
func sessionID(c *gin.Context) (string, bool) {
	id := c.Param("session_id")
	if _, err := uuid.Parse(id); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return id, true
}
