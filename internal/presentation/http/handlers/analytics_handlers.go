package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PulseTrack/pulsetrack-go/internal/application/services"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/performance"
)

// AnalyticsHandlers contains the read-side rollup handlers.
type AnalyticsHandlers struct {
	analyticsService *services.AnalyticsService
	logger           *logging.ChanneledLogger
	perfTracker      *performance.Tracker
}

// NewAnalyticsHandlers creates analytics handlers with injected dependencies.
func NewAnalyticsHandlers(analyticsService *services.AnalyticsService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		analyticsService: analyticsService,
		logger:           logger,
		perfTracker:      perfTracker,
	}
}

// parseRange reads from/to query params, defaulting to the last 24h.
func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now()
	from := now.Add(-24 * time.Hour)
	to := now

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return from, to, false
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return from, to, false
		}
		to = parsed
	}
	if !to.After(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return from, to, false
	}
	return from, to, true
}

// GetExperimentAnalytics handles GET /api/v1/experiments/:id/analytics
func (h *AnalyticsHandlers) GetExperimentAnalytics(c *gin.Context) {
	marker := h.perfTracker.StartOperation("get_experiment_analytics_request")
	defer marker.Complete()

	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	report, err := h.analyticsService.ExperimentAnalytics(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, report)
}

// GetSummary handles GET /api/v1/analytics/summary
func (h *AnalyticsHandlers) GetSummary(c *gin.Context) {
	marker := h.perfTracker.StartOperation("get_analytics_summary_request")
	defer marker.Complete()

	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	// Optional per-session filter narrows the rollup to one visitor.
	if sessionID := c.Query("sessionId"); sessionID != "" {
		counts, err := h.analyticsService.SessionEventCounts(c.Request.Context(), sessionID, from, to)
		if err != nil {
			writeError(c, err)
			return
		}
		marker.SetSuccess(true)
		c.JSON(http.StatusOK, gin.H{
			"sessionId":   sessionID,
			"from":        from,
			"to":          to,
			"eventCounts": counts,
		})
		return
	}

	report, err := h.analyticsService.Summary(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, report)
}
