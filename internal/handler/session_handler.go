package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// SessionHandler drives live quiz sessions over REST.
type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// CreateSession godoc
// POST /api/v1/quizzes/:quiz_id/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	quizID, ok := parseQuizID(c)
	if !ok {
		return
	}

	view, err := h.sessionService.Create(c.Request.Context(), quizID, middleware.GetClaims(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, view)
}

// GetState godoc
// GET /api/v1/sessions/:session_id
func (h *SessionHandler) GetState(c *gin.Context) {
	h.respond(c, h.sessionService.State)
}

// GetQuestions godoc
// GET /api/v1/sessions/:session_id/questions
func (h *SessionHandler) GetQuestions(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	questions, err := h.sessionService.Questions(id, middleware.GetClaims(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, questions)
}

// Start godoc
// POST /api/v1/sessions/:session_id/start
func (h *SessionHandler) Start(c *gin.Context) {
	h.respond(c, h.sessionService.Start)
}

// Retake godoc
// POST /api/v1/sessions/:session_id/retake
func (h *SessionHandler) Retake(c *gin.Context) {
	h.respond(c, h.sessionService.Retake)
}

// Answer godoc
// PUT /api/v1/sessions/:session_id/answers
func (h *SessionHandler) Answer(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}
	if req.Label == "" && req.Text == "" {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"label": "label or text is required",
		})
		return
	}

	view, err := h.sessionService.Answer(id, middleware.GetClaims(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// ToggleFlag godoc
// POST /api/v1/sessions/:session_id/flags/:question_id
func (h *SessionHandler) ToggleFlag(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	view, err := h.sessionService.ToggleFlag(id, middleware.GetClaims(c), c.Param("question_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GoTo godoc
// PUT /api/v1/sessions/:session_id/position
func (h *SessionHandler) GoTo(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req model.GoToRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}

	view, err := h.sessionService.GoTo(id, middleware.GetClaims(c), *req.Index)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Submit godoc
// POST /api/v1/sessions/:session_id/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	h.respondResult(c, h.sessionService.Submit)
}

// GetResult godoc
// GET /api/v1/sessions/:session_id/result
func (h *SessionHandler) GetResult(c *gin.Context) {
	h.respondResult(c, h.sessionService.Result)
}

// CloseSession godoc
// DELETE /api/v1/sessions/:session_id
func (h *SessionHandler) CloseSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	if err := h.sessionService.Close(id, middleware.GetClaims(c)); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Session closed"})
}

// ---------- helpers ----------

func (h *SessionHandler) respond(c *gin.Context, op func(string, *service.Claims) (*model.SessionView, error)) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	view, err := op(id, middleware.GetClaims(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

func (h *SessionHandler) respondResult(c *gin.Context, op func(string, *service.Claims) (*model.ResultView, error)) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	result, err := op(id, middleware.GetClaims(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
