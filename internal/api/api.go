package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"violation-service/internal/apperr"
	"violation-service/internal/lifecycle"
	"violation-service/internal/logging"
	"violation-service/internal/models"
	"violation-service/internal/notification"
	"violation-service/internal/realtime"
)

const actorKey = "actor"

// Deps are the services the HTTP layer fronts.
type Deps struct {
	Engine  *lifecycle.Engine
	Emitter *notification.Emitter
	Hub     *realtime.Hub
}

type Handler struct {
	engine  *lifecycle.Engine
	emitter *notification.Emitter
	hub     *realtime.Hub
	logger  *logging.Logger
}

func NewHandler(deps Deps, logger *logging.Logger) *Handler {
	return &Handler{engine: deps.Engine, emitter: deps.Emitter, hub: deps.Hub, logger: logger}
}

// fail writes err with the status its type maps to. Store failures are
// logged and reported without detail.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("Failed to %s: %v", op, err)
		c.JSON(status, gin.H{"error": "Failed to " + op, "code": apperr.Code(err)})
		return
	}
	h.logger.Warnf("Rejected %s: %v", op, err)
	c.JSON(status, gin.H{"error": err.Error(), "code": apperr.Code(err)})
}

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(models.Actor); ok {
			return a
		}
	}
	return models.Actor{}
}

// page reads limit and offset query parameters; absent or malformed values
// fall back to the store defaults.
func page(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	return limit, offset
}
