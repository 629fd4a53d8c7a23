package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PulseTrack/pulsetrack-go/internal/application/services"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/performance"
)

// SessionHandlers contains the session lifecycle handlers.
type SessionHandlers struct {
	sessionService *services.SessionService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewSessionHandlers creates session handlers with injected dependencies.
func NewSessionHandlers(sessionService *services.SessionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionHandlers {
	return &SessionHandlers{
		sessionService: sessionService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// SessionRequest carries the client-generated session identifier.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// PostSession handles POST /api/v1/sessions - resolves or creates a
// session and returns its bearer token.
func (h *SessionHandlers) PostSession(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_session_request")
	defer marker.Complete()

	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}

	handle, err := h.sessionService.GetOrCreate(c.Request.Context(), req.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if handle.Created {
		status = http.StatusCreated
	}
	marker.SetSuccess(true)
	c.JSON(status, gin.H{
		"sessionId": handle.Session.ID,
		"token":     handle.Token,
		"created":   handle.Created,
		"segment":   handle.Session.Segment,
		"flags":     handle.Session.Flags,
		"expiresAt": handle.Session.ExpiresAt,
	})
}

// GetSession handles GET /api/v1/sessions/:id
func (h *SessionHandlers) GetSession(c *gin.Context) {
	marker := h.perfTracker.StartOperation("get_session_request")
	defer marker.Complete()

	snap, err := h.sessionService.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, snap)
}

// MergeRequest names the surviving and absorbed sessions.
type MergeRequest struct {
	PrimaryID   string `json:"primarySessionId"`
	SecondaryID string `json:"secondarySessionId"`
	Reason      string `json:"reason,omitempty"`
}

// PostMerge handles POST /api/v1/sessions/merge
func (h *SessionHandlers) PostMerge(c *gin.Context) {
	marker := h.perfTracker.StartOperation("post_merge_request")
	defer marker.Complete()

	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		return
	}
	if req.Reason == "" {
		req.Reason = "identity_resolution"
	}

	merged, err := h.sessionService.Merge(c.Request.Context(), req.PrimaryID, req.SecondaryID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, merged)
}
