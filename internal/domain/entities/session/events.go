// Package session defines the visitor session model and the behavior
// event schema it is built from.
package session

import (
	"regexp"
	"time"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/errs"
)

// EventType is the closed enum of inbound behavior event types.
type EventType string

const (
	EventPageVisit         EventType = "page_visit"
	EventScrollDepth       EventType = "scroll_depth"
	EventQuizAnswer        EventType = "quiz_answer"
	EventAffiliateClick    EventType = "affiliate_click"
	EventTimeOnSite        EventType = "time_on_site"
	EventCTAClick          EventType = "cta_click"
	EventContentEngagement EventType = "content_engagement"
)

var validEventTypes = map[EventType]bool{
	EventPageVisit:         true,
	EventScrollDepth:       true,
	EventQuizAnswer:        true,
	EventAffiliateClick:    true,
	EventTimeOnSite:        true,
	EventCTAClick:          true,
	EventContentEngagement: true,
}

// sessionIDPattern matches the opaque client-generated session token.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

const maxPayloadKeys = 64

// BehaviorEvent is a single visitor action. Events are immutable once
// created and append-only in both memory and durable storage.
type BehaviorEvent struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId"`
	PageSlug  string         `json:"pageSlug,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ValidateSessionID rejects malformed session identifiers.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return errs.NewValidationError("sessionId", "required")
	}
	if !sessionIDPattern.MatchString(sessionID) {
		return errs.NewValidationError("sessionId", "must be 8-128 chars of [A-Za-z0-9_-]")
	}
	return nil
}

// Validate checks an inbound event against the schema. It reports the
// first violation found and never panics into the caller's path.
func (e *BehaviorEvent) Validate() error {
	if err := ValidateSessionID(e.SessionID); err != nil {
		return err
	}
	if !validEventTypes[e.Type] {
		return errs.NewValidationError("type", "unknown event type "+string(e.Type))
	}
	if e.Timestamp.IsZero() {
		return errs.NewValidationError("timestamp", "required")
	}
	if len(e.Data) > maxPayloadKeys {
		return errs.NewValidationError("data", "payload exceeds key limit")
	}
	switch e.Type {
	case EventQuizAnswer:
		if _, ok := e.Data["quizId"]; !ok {
			return errs.NewValidationError("data.quizId", "required for quiz_answer")
		}
	case EventAffiliateClick:
		if _, ok := e.Data["offerId"]; !ok {
			return errs.NewValidationError("data.offerId", "required for affiliate_click")
		}
	}
	return nil
}
