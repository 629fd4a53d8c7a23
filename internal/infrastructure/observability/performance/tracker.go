// Package performance provides lightweight operation tracking for
// request handlers and background workers.
package performance

import (
	"sync"
	"time"
)

// Marker tracks one in-flight operation.
type Marker struct {
	Operation string         `json:"operation"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	tracker *Tracker
	done    bool
	mu      sync.Mutex
}

// Complete finalizes the marker and records it with the tracker.
func (m *Marker) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}
	m.done = true
	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	if m.tracker != nil {
		m.tracker.record(m)
	}
}

// SetSuccess marks the operation outcome.
func (m *Marker) SetSuccess(success bool) {
	m.mu.Lock()
	m.Success = success
	m.mu.Unlock()
}

// SetMetadata attaches a key/value to the marker.
func (m *Marker) SetMetadata(key string, value any) {
	m.mu.Lock()
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
	m.mu.Unlock()
}

// OperationStats aggregates completed markers per operation name.
type OperationStats struct {
	Count         int64         `json:"count"`
	Failures      int64         `json:"failures"`
	TotalDuration time.Duration `json:"totalDuration"`
	MaxDuration   time.Duration `json:"maxDuration"`
}

// Tracker aggregates operation markers.
type Tracker struct {
	stats   map[string]*OperationStats
	mu      sync.RWMutex
	started time.Time
}

// NewTracker creates a new performance tracker.
func NewTracker() *Tracker {
	return &Tracker{
		stats:   make(map[string]*OperationStats),
		started: time.Now(),
	}
}

// StartOperation creates a marker for an operation.
func (t *Tracker) StartOperation(operation string) *Marker {
	return &Marker{
		Operation: operation,
		StartTime: time.Now(),
		tracker:   t,
	}
}

func (t *Tracker) record(m *Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.stats[m.Operation]
	if !ok {
		stats = &OperationStats{}
		t.stats[m.Operation] = stats
	}
	stats.Count++
	if !m.Success {
		stats.Failures++
	}
	stats.TotalDuration += m.Duration
	if m.Duration > stats.MaxDuration {
		stats.MaxDuration = m.Duration
	}
}

// Stats returns a copy of the aggregated stats per operation.
func (t *Tracker) Stats() map[string]OperationStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]OperationStats, len(t.stats))
	for op, s := range t.stats {
		out[op] = *s
	}
	return out
}

// Uptime reports how long the tracker has been running.
func (t *Tracker) Uptime() time.Duration {
	return time.Since(t.started)
}
