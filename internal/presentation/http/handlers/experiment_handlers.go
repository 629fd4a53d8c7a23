package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PulseTrack/pulsetrack-go/internal/application/services"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/experiment"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/performance"
)

// ExperimentHandlers contains the assignment and outcome handlers.
type ExperimentHandlers struct {
	experimentService *services.ExperimentService
	logger            *logging.ChanneledLogger
	perfTracker       *performance.Tracker
}

// NewExperimentHandlers creates experiment handlers with injected dependencies.
func NewExperimentHandlers(experimentService *services.ExperimentService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *ExperimentHandlers {
	return &ExperimentHandlers{
		experimentService: experimentService,
		logger:            logger,
		perfTracker:       perfTracker,
	}
}

// AssignRequest names the session asking for a variant.
type AssignRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
}

// PostAssign handles POST /api/v1/experiments/:id/assign
func (h *ExperimentHandlers) PostAssign(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_assign_request")
	defer marker.Complete()

	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	result, err := h.experimentService.Assign(c.Request.Context(), req.SessionID, c.Param("id"), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}

	marker.SetSuccess(true)
	if !result.Eligible {
		c.JSON(http.StatusOK, gin.H{
			"eligible": false,
			"reason":   result.Reason,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"eligible":  true,
		"variantId": result.Variant.ID,
		"isControl": result.Variant.IsControl,
		"config":    result.Variant.Config,
		"existing":  result.Existing,
	})
}

// OutcomeRequest is one experiment outcome event from the client.
type OutcomeRequest struct {
	SessionID string  `json:"sessionId"`
	EventType string  `json:"eventType"`
	Value     float64 `json:"value,omitempty"`
}

// PostOutcome handles POST /api/v1/experiments/:id/events
func (h *ExperimentHandlers) PostOutcome(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_outcome_request")
	defer marker.Complete()

	var req OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	err := h.experimentService.RecordEvent(c.Request.Context(),
		req.SessionID, c.Param("id"), experiment.EventType(req.EventType), req.Value)
	if err != nil {
		writeError(c, err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}
