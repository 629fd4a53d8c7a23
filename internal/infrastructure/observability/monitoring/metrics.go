// Package monitoring exposes Prometheus collectors for the ingestion
// pipeline and assignment engine.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors registered for the engine core.
type Metrics struct {
	EventsEnqueued    prometheus.Counter
	EventsRejected    prometheus.Counter
	BatchesFlushed    prometheus.Counter
	EventsFlushed     prometheus.Counter
	FlushRetries      prometheus.Counter
	BatchesDeadLetter prometheus.Counter
	OpenBuffers       prometheus.Gauge
	Assignments       *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	SessionMerges     prometheus.Counter
}

// NewMetrics creates and registers collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsetrack",
			Subsystem: "ingestion",
			Name:      "events_enqueued_total",
			Help:      "Behavior events accepted into per-session buffers.",
		}),
		EventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsetrack",
			Subsystem: "ingestion",
			Name:      "events_rejected_total",
			Help:      "Behavior events rejected by schema validation.",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsetrack",
			Subsystem: "ingestion",
			Name:      "batches_flushed_total",
			Help:      "Batches durably written.",
		}),
		EventsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsetrack",
			Subsystem: "ingestion",
			Name:      "events_flushed_total",
			Help:      "Events durably written across all batches.",
		}),
		FlushRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsetrack",
			Subsystem: "ingestion",
			Name:      "flush_retries_total",
			Help:      "Durable write attempts that failed and were retried.",
		}),
		BatchesDeadLetter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsetrack",
			Subsystem: "ingestion",
			Name:      "batches_dead_letter_total",
			Help:      "Batches surfaced to the dead-letter path after exhausting retries.",
		}),
		OpenBuffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulsetrack",
			Subsystem: "ingestion",
			Name:      "open_buffers",
			Help:      "Per-session buffers currently holding unflushed events.",
		}),
		Assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsetrack",
			Subsystem: "experiment",
			Name:      "assignments_total",
			Help:      "Assignment lookups by outcome.",
		}, []string{"outcome"}), // existing, created, not_eligible, error
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulsetrack",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held in memory.",
		}),
		SessionMerges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pulsetrack",
			Subsystem: "session",
			Name:      "merges_total",
			Help:      "Completed cross-device session merges.",
		}),
	}

	reg.MustRegister(
		m.EventsEnqueued, m.EventsRejected,
		m.BatchesFlushed, m.EventsFlushed, m.FlushRetries, m.BatchesDeadLetter,
		m.OpenBuffers, m.Assignments, m.SessionsActive, m.SessionMerges,
	)
	return m
}
