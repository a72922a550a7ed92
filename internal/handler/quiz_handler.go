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

// QuizHandler serves quiz metadata and admin quiz management.
type QuizHandler struct {
	quizService    *service.QuizService
	sessionService *service.SessionService
}

func NewQuizHandler(quizService *service.QuizService, sessionService *service.SessionService) *QuizHandler {
	return &QuizHandler{quizService: quizService, sessionService: sessionService}
}

// Intro godoc
// GET /api/v1/quizzes/:quiz_id
func (h *QuizHandler) Intro(c *gin.Context) {
	quizID, ok := parseQuizID(c)
	if !ok {
		return
	}

	intro, err := h.sessionService.Intro(c.Request.Context(), quizID, middleware.GetClaims(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, intro)
}

// CreateQuiz godoc
// POST /api/v1/admin/quizzes
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var req model.CreateQuizRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}

	quiz, err := h.quizService.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, quiz)
}

// PublishQuiz godoc
// POST /api/v1/admin/quizzes/:quiz_id/publish
func (h *QuizHandler) PublishQuiz(c *gin.Context) {
	quizID, ok := parseQuizID(c)
	if !ok {
		return
	}

	quiz, err := h.quizService.Publish(c.Request.Context(), quizID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, quiz)
}
