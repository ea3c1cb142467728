package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"violation-service/internal/realtime"
)

func (h *Handler) ListNotifications(c *gin.Context) {
	limit, offset := page(c)
	list, err := h.emitter.List(c.Request.Context(), actorFrom(c), c.Query("unread") == "true", limit, offset)
	if err != nil {
		h.fail(c, "list notifications", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.emitter.UnreadCount(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, "count unread notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) MarkRead(c *gin.Context) {
	id := c.Param("id")
	if err := h.emitter.MarkRead(c.Request.Context(), actorFrom(c), id); err != nil {
		h.fail(c, "mark notification read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_read": true})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.emitter.MarkAllRead(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, "mark all notifications read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) DashboardStats(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, "get dashboard stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Realtime upgrades to the channel websocket.
func (h *Handler) Realtime(c *gin.Context) {
	err := h.hub.Serve(c.Writer, c.Request, actorFrom(c))
	switch {
	case errors.Is(err, realtime.ErrTooManyConnections):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "code": "too_many_connections"})
	case err != nil:
		h.logger.Errorf("Websocket upgrade failed: %v", err)
	}
}
