package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepstack/exam-service/internal/config"
	"github.com/prepstack/exam-service/internal/models"
	"github.com/prepstack/exam-service/internal/services"
	"github.com/prepstack/exam-service/internal/utils"
)

type HandlerManager struct {
	attemptHandler     *AttemptHandler
	leaderboardHandler *LeaderboardHandler
	authMiddleware     *CasdoorAuthMiddleware
	serviceManager     services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler:     NewAttemptHandler(serviceManager.Attempt(), serviceManager.Proctor(), logger),
		leaderboardHandler: NewLeaderboardHandler(serviceManager.Leaderboard(), logger),
		authMiddleware:     NewCasdoorAuthMiddleware(casdoorConfig),
		serviceManager:     serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Attempt lifecycle
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.POST("/:id/answer", hm.attemptHandler.SaveAnswer)
			attempts.POST("/:id/answers/batch", hm.attemptHandler.SaveAnswersBatch)
			attempts.POST("/:id/violation", hm.attemptHandler.ReportViolation)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)
			attempts.GET("/:id/result", hm.attemptHandler.GetResult)
		}

		// Leaderboards
		exams := v1.Group("/exams")
		{
			exams.GET("/:exam_id/leaderboard", hm.leaderboardHandler.GetExamLeaderboard)
			exams.GET("/:exam_id/leaderboard/export",
				hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin),
				hm.leaderboardHandler.ExportExamLeaderboard)
		}
		v1.GET("/leaderboard/global", hm.leaderboardHandler.GetGlobalLeaderboard)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "exam-service",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "exam-service",
		})
	})
}
