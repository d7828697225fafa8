package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mishalinitiative/quizbot/internal/response"
	"github.com/mishalinitiative/quizbot/internal/service"
)

// DashboardHandler serves aggregate quiz statistics.
type DashboardHandler struct {
	statsService *service.StatsService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(statsService *service.StatsService) *DashboardHandler {
	return &DashboardHandler{statsService: statsService}
}

// GetSummary godoc
// GET /api/v1/dashboard/summary
// Returns global counters plus the most recent completed attempts.
func (h *DashboardHandler) GetSummary(c *gin.Context) {
	summary, err := h.statsService.GetSummary(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// GetExamStats godoc
// GET /api/v1/dashboard/exams/:exam_key/stats
// Returns the aggregate statistics for one exam.
func (h *DashboardHandler) GetExamStats(c *gin.Context) {
	examKey := c.Param("exam_key")
	agg, err := h.statsService.GetExamAggregate(c.Request.Context(), examKey)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, agg)
}
