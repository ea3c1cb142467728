package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"violation-service/internal/logging"
	"violation-service/internal/models"
)

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}

// IdentityMiddleware reads the caller identity the upstream auth provider
// attaches to every request.
func IdentityMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		role := models.Role(c.GetHeader("X-User-Role"))
		if err != nil || userID <= 0 || !role.Valid() {
			logger.Warnf("Missing or invalid identity on %s %s", c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid identity", "code": "unauthenticated"})
			return
		}
		c.Set(actorKey, models.Actor{UserID: userID, Role: role})
		c.Next()
	}
}
