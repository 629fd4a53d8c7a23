package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PulseTrack/pulsetrack-go/internal/application/services"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/performance"
)

// EventHandlers contains the behavior event ingestion handlers.
type EventHandlers struct {
	sessionService *services.SessionService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewEventHandlers creates event handlers with injected dependencies.
func NewEventHandlers(sessionService *services.SessionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *EventHandlers {
	return &EventHandlers{
		sessionService: sessionService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// EventRequest is the inbound behavior event payload.
type EventRequest struct {
	Type      string         `json:"type"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	SessionID string         `json:"sessionId"`
	PageSlug  string         `json:"pageSlug,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

func (r *EventRequest) toEvent() session.BehaviorEvent {
	ts := time.Now()
	if r.Timestamp != nil {
		ts = *r.Timestamp
	}
	return session.BehaviorEvent{
		Type:      session.EventType(r.Type),
		Timestamp: ts,
		SessionID: r.SessionID,
		PageSlug:  r.PageSlug,
		UserID:    r.UserID,
		Data:      r.Data,
	}
}

// EventResponse returns the session state after the event was folded in.
type EventResponse struct {
	Accepted bool            `json:"accepted"`
	Segment  string          `json:"segment"`
	Flags    map[string]bool `json:"flags"`
}

// PostEvent handles POST /api/v1/events
func (h *EventHandlers) PostEvent(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_event_request")
	defer marker.Complete()

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Ingestion().Error("Event request JSON binding failed", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	snap, err := h.sessionService.ApplyEvent(c.Request.Context(), req.toEvent())
	if err != nil {
		writeError(c, err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusAccepted, EventResponse{
		Accepted: true,
		Segment:  snap.Segment,
		Flags:    snap.Flags,
	})
}

// BatchEventRequest is a client-side batch of behavior events.
type BatchEventRequest struct {
	Events []EventRequest `json:"events"`
}

// PostEventBatch handles POST /api/v1/events/batch
func (h *EventHandlers) PostEventBatch(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_event_batch_request")
	defer marker.Complete()

	var req BatchEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Ingestion().Error("Batch request JSON binding failed", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "events array must not be empty"})
		return
	}

	evts := make([]session.BehaviorEvent, 0, len(req.Events))
	for i := range req.Events {
		evts = append(evts, req.Events[i].toEvent())
	}

	result, err := h.sessionService.ApplyEvents(c.Request.Context(), evts)
	if err != nil {
		writeError(c, err)
		return
	}

	marker.SetSuccess(true)
	resp := gin.H{
		"batchId":  result.BatchID,
		"accepted": result.Accepted,
		"rejected": result.Rejected,
	}
	if result.Session != nil {
		resp["segment"] = result.Session.Segment
		resp["flags"] = result.Session.Flags
	}
	c.JSON(http.StatusAccepted, resp)
}
