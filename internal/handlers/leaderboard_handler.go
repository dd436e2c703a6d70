package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepstack/exam-service/internal/services"
	"github.com/prepstack/exam-service/internal/utils"
)

type LeaderboardHandler struct {
	BaseHandler
	leaderboardService services.LeaderboardService
}

func NewLeaderboardHandler(
	leaderboardService services.LeaderboardService,
	logger utils.Logger,
) *LeaderboardHandler {
	return &LeaderboardHandler{
		BaseHandler:        NewBaseHandler(logger),
		leaderboardService: leaderboardService,
	}
}

// GetExamLeaderboard returns a ranked page of an exam's leaderboard
// @Summary Get exam leaderboard
// @Description Returns best scores per user for an exam, ranked
// @Tags leaderboard
// @Accept json
// @Produce json
// @Param exam_id path uint true "Exam ID"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} services.LeaderboardResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /exams/{exam_id}/leaderboard [get]
func (h *LeaderboardHandler) GetExamLeaderboard(c *gin.Context) {
	examID := h.parseIDParam(c, "exam_id")
	if examID == 0 {
		return
	}

	var filters services.LeaderboardFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query parameters",
			Details: err.Error(),
		})
		return
	}

	board, err := h.leaderboardService.GetByExam(c.Request.Context(), examID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}

// GetGlobalLeaderboard returns the cross-exam ranking
// @Summary Get global leaderboard
// @Description Ranks users by the sum of their best scores across exams
// @Tags leaderboard
// @Accept json
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} services.GlobalLeaderboardResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /leaderboard/global [get]
func (h *LeaderboardHandler) GetGlobalLeaderboard(c *gin.Context) {
	var filters services.LeaderboardFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query parameters",
			Details: err.Error(),
		})
		return
	}

	board, err := h.leaderboardService.Global(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}

// ExportExamLeaderboard streams the full leaderboard as an XLSX workbook
// @Summary Export exam leaderboard
// @Description Downloads the complete leaderboard for offline analysis, admin only
// @Tags leaderboard
// @Accept json
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param exam_id path uint true "Exam ID"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /exams/{exam_id}/leaderboard/export [get]
func (h *LeaderboardHandler) ExportExamLeaderboard(c *gin.Context) {
	examID := h.parseIDParam(c, "exam_id")
	if examID == 0 {
		return
	}

	h.LogRequest(c, "Exporting exam leaderboard", "exam_id", examID)

	data, filename, err := h.leaderboardService.ExportByExam(c.Request.Context(), examID, currentUser(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
