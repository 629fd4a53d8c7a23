// Package experiment defines the A/B test configuration and the durable
// records the assignment engine produces.
package experiment

import (
	"time"
)

// Type declares what entity an experiment targets.
type Type string

const (
	TypePage    Type = "page"
	TypeOffer   Type = "offer"
	TypeCTA     Type = "cta"
	TypeQuiz    Type = "quiz"
	TypeContent Type = "content"
)

// Status is the experiment lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Experiment is one A/B test. TrafficAllocation (0-100) is the fraction
// of total traffic eligible for assignment at all.
type Experiment struct {
	ID                string     `json:"id"`
	Slug              string     `json:"slug"`
	Type              Type       `json:"type"`
	TargetID          string     `json:"targetId"`
	TrafficAllocation int        `json:"trafficAllocation"`
	Status            Status     `json:"status"`
	StartsAt          *time.Time `json:"startsAt,omitempty"`
	EndsAt            *time.Time `json:"endsAt,omitempty"`
}

// IsRunning reports whether the experiment accepts assignments at now.
func (e *Experiment) IsRunning(now time.Time) bool {
	if e.Status != StatusActive {
		return false
	}
	if e.StartsAt != nil && now.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && now.After(*e.EndsAt) {
		return false
	}
	return true
}

// Variant is one treatment arm of an experiment. The configuration
// payload is opaque to the engine. For a given experiment the active
// variants' traffic percentages should sum to at most 100; violations
// never crash the engine, they fall back to the control.
type Variant struct {
	ID           string         `json:"id"`
	ExperimentID string         `json:"experimentId"`
	TrafficPct   int            `json:"trafficPct"`
	IsControl    bool           `json:"isControl"`
	Config       map[string]any `json:"config,omitempty"`
}

// Assignment is the durable (session, experiment) -> variant mapping.
// Created once, immutable thereafter, re-used on every lookup for the
// same pair. This is the central stability invariant of the engine.
type Assignment struct {
	SessionID    string    `json:"sessionId"`
	ExperimentID string    `json:"experimentId"`
	VariantID    string    `json:"variantId"`
	UserID       string    `json:"userId,omitempty"`
	AssignedAt   time.Time `json:"assignedAt"`
}

// EventType is the closed enum of experiment outcome events.
type EventType string

const (
	EventImpression EventType = "impression"
	EventClick      EventType = "click"
	EventConversion EventType = "conversion"
	EventBounce     EventType = "bounce"
)

// Event is one append-only experiment outcome record, used purely for
// aggregation and never mutated.
type Event struct {
	SessionID    string    `json:"sessionId"`
	ExperimentID string    `json:"experimentId"`
	VariantID    string    `json:"variantId"`
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	Value        float64   `json:"value,omitempty"`
}

// ValidEventType reports whether t is a known experiment event type.
func ValidEventType(t EventType) bool {
	switch t {
	case EventImpression, EventClick, EventConversion, EventBounce:
		return true
	}
	return false
}
