package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"violation-service/internal/config"
	"violation-service/internal/logging"
	"violation-service/internal/metrics"
)

func NewRouter(deps Deps, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))
	r.MaxMultipartMemory = 8 << 20

	h := NewHandler(deps, logger)
	api := r.Group(cfg.API.BasePath, IdentityMiddleware(logger))
	{
		// Violations
		api.GET("/violations", h.ListViolations)
		api.POST("/violations", h.CreateViolation)
		api.GET("/violations/:id", h.GetViolation)
		api.GET("/violations/:id/history", h.ViolationHistory)
		api.POST("/violations/:id/appeal", h.SubmitAppeal)
		api.POST("/violations/:id/reject", h.RejectViolation)

		// Contests
		api.GET("/contests", h.ListContests)
		api.GET("/contests/:id", h.GetContest)
		api.GET("/contests/:id/history", h.ContestHistory)
		api.POST("/contests/:id/review", h.ReviewContest)

		// Notifications
		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/unread-count", h.UnreadCount)
		api.PUT("/notifications/read-all", h.MarkAllRead)
		api.PUT("/notifications/:id/read", h.MarkRead)

		// Dashboard and push
		api.GET("/dashboard/stats", h.DashboardStats)
		api.GET("/ws", h.Realtime)
	}

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
