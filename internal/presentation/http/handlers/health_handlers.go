package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PulseTrack/pulsetrack-go/internal/application/container"
)

// HealthHandlers reports process liveness and pipeline state.
type HealthHandlers struct {
	container *container.Container
}

// NewHealthHandlers creates health handlers.
func NewHealthHandlers(c *container.Container) *HealthHandlers {
	return &HealthHandlers{container: c}
}

// GetHealth handles GET /health
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	status := http.StatusOK
	overall := "ok"
	dbStatus := "ok"
	if err := h.container.DB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "unreachable"
		overall = "degraded"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":        overall,
		"database":      dbStatus,
		"sessions":      h.container.SessionsStore.Count(),
		"pendingEvents": h.container.Batcher.PendingEvents(),
		"uptime":        h.container.PerfTracker.Uptime().String(),
	})
}
