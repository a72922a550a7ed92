package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// ImportHandler accepts question file uploads.
type ImportHandler struct {
	importService *service.ImportService
	maxBytes      int64
}

func NewImportHandler(importService *service.ImportService, maxBytes int64) *ImportHandler {
	return &ImportHandler{importService: importService, maxBytes: maxBytes}
}

// PreviewQuestions godoc
// POST /api/v1/admin/quizzes/:quiz_id/questions/preview
func (h *ImportHandler) PreviewQuestions(c *gin.Context) {
	if _, ok := parseQuizID(c); !ok {
		return
	}
	form, filename, data, ok := h.readUpload(c)
	if !ok {
		return
	}

	summary, err := h.importService.Preview(filename, data, form.QuestionType)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// ImportQuestions godoc
// PUT /api/v1/admin/quizzes/:quiz_id/questions/import
func (h *ImportHandler) ImportQuestions(c *gin.Context) {
	quizID, ok := parseQuizID(c)
	if !ok {
		return
	}
	form, filename, data, ok := h.readUpload(c)
	if !ok {
		return
	}

	summary, err := h.importService.Import(c.Request.Context(), quizID, filename, data, form.QuestionType)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// readUpload binds the form and reads the "file" part, capped at maxBytes.
func (h *ImportHandler) readUpload(c *gin.Context) (model.ImportQuestionsForm, string, []byte, bool) {
	var form model.ImportQuestionsForm

	// Multipart framing adds a little on top of the file itself.
	limit := h.maxBytes + 64*1024
	if c.Request.ContentLength > limit {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return form, "", nil, false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return form, "", nil, false
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return form, "", nil, false
	}
	if errs := validator.BindForm(c, &form); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return form, "", nil, false
	}
	if fh.Size > h.maxBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return form, "", nil, false
	}

	f, err := fh.Open()
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return form, "", nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return form, "", nil, false
	}
	return form, fh.Filename, data, true
}
