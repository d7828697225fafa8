package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mishalinitiative/quizbot/internal/content"
	"github.com/mishalinitiative/quizbot/internal/model"
	"github.com/mishalinitiative/quizbot/internal/repository"
	"github.com/mishalinitiative/quizbot/internal/response"
	"github.com/mishalinitiative/quizbot/internal/validator"
)

// ExamAdminHandler manages dynamic exams from the dashboard.
type ExamAdminHandler struct {
	examRepo *repository.ExamRepository
	loader   *content.Loader
}

// NewExamAdminHandler creates a new ExamAdminHandler.
func NewExamAdminHandler(examRepo *repository.ExamRepository, loader *content.Loader) *ExamAdminHandler {
	return &ExamAdminHandler{examRepo: examRepo, loader: loader}
}

// List godoc
// GET /api/v1/admin/exams
// Lists every dynamic exam, hidden ones included.
func (h *ExamAdminHandler) List(c *gin.Context) {
	defs, err := h.examRepo.List(c.Request.Context(), true)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if defs == nil {
		defs = []model.ExamDefinition{}
	}
	response.Success(c, http.StatusOK, gin.H{"exams": defs})
}

// SetVisibility godoc
// PATCH /api/v1/admin/exams/:exam_id/visibility
// Shows or hides an exam in the bot's main menu.
func (h *ExamAdminHandler) SetVisibility(c *gin.Context) {
	examID := c.Param("exam_id")

	var req model.SetVisibilityRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if _, err := h.examRepo.GetByID(c.Request.Context(), examID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if err := h.examRepo.SetHidden(c.Request.Context(), examID, *req.IsHidden); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	h.loader.Invalidate()

	response.Success(c, http.StatusOK, gin.H{"exam_id": examID, "is_hidden": *req.IsHidden})
}

// ReloadContent godoc
// POST /api/v1/admin/content/reload
// Clears the content cache so CSV edits take effect immediately.
func (h *ExamAdminHandler) ReloadContent(c *gin.Context) {
	h.loader.Invalidate()
	response.Success(c, http.StatusOK, gin.H{"reloaded": true})
}
