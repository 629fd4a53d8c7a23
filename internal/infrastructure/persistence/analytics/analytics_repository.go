// Package analytics provides read-side SQL rollups over the durable
// event log. All queries are bounded by a time range and never touch
// the in-memory session store.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// VariantStats is the per-variant rollup for one experiment.
type VariantStats struct {
	VariantID   string  `json:"variantId"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	Conversions int     `json:"conversions"`
	Bounces     int     `json:"bounces"`
	TotalValue  float64 `json:"totalValue"`
}

// EventTypeCount is one row of the behavior event summary.
type EventTypeCount struct {
	EventType string `json:"eventType"`
	Count     int    `json:"count"`
}

// SegmentCount is one row of the session segment distribution.
type SegmentCount struct {
	Segment string `json:"segment"`
	Count   int    `json:"count"`
}

// SQLAnalyticsRepository aggregates durable event rows.
type SQLAnalyticsRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLAnalyticsRepository creates a new instance of the repository.
func NewSQLAnalyticsRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLAnalyticsRepository {
	return &SQLAnalyticsRepository{db: db, logger: logger}
}

// VariantStats rolls up outcome events per variant for one experiment
// inside [from, to).
func (r *SQLAnalyticsRepository) VariantStats(ctx context.Context, experimentID string, from, to time.Time) ([]VariantStats, error) {
	const query = `
		SELECT variant_id,
			COUNT(CASE WHEN event_type = 'impression' THEN 1 END) as impressions,
			COUNT(CASE WHEN event_type = 'click' THEN 1 END) as clicks,
			COUNT(CASE WHEN event_type = 'conversion' THEN 1 END) as conversions,
			COUNT(CASE WHEN event_type = 'bounce' THEN 1 END) as bounces,
			COALESCE(SUM(CASE WHEN event_type = 'conversion' THEN value ELSE 0 END), 0) as total_value
		FROM experiment_events
		WHERE experiment_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY variant_id
		ORDER BY variant_id`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, experimentID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query variant stats: %w", err)
	}
	defer rows.Close()

	var stats []VariantStats
	for rows.Next() {
		var s VariantStats
		if err := rows.Scan(&s.VariantID, &s.Impressions, &s.Clicks, &s.Conversions, &s.Bounces, &s.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan variant stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold && r.logger != nil {
		r.logger.LogSlowQuery(query, duration)
	}
	return stats, nil
}

// EventCounts returns behavior event counts by type inside [from, to),
// optionally filtered to one session.
func (r *SQLAnalyticsRepository) EventCounts(ctx context.Context, sessionID string, from, to time.Time) ([]EventTypeCount, error) {
	query := `
		SELECT event_type, COUNT(*) FROM behavior_events
		WHERE created_at >= ? AND created_at < ?`
	args := []any{from.UnixMilli(), to.UnixMilli()}
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` GROUP BY event_type ORDER BY event_type`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts: %w", err)
	}
	defer rows.Close()

	var counts []EventTypeCount
	for rows.Next() {
		var c EventTypeCount
		if err := rows.Scan(&c.EventType, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold && r.logger != nil {
		r.logger.LogSlowQuery(query, duration)
	}
	return counts, nil
}

// SegmentDistribution returns how many persisted sessions sit in each
// segment, merge tombstones excluded.
func (r *SQLAnalyticsRepository) SegmentDistribution(ctx context.Context) ([]SegmentCount, error) {
	const query = `
		SELECT segment, COUNT(*) FROM sessions
		WHERE merged = 0 AND segment != ''
		GROUP BY segment ORDER BY segment`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query segment distribution: %w", err)
	}
	defer rows.Close()

	var counts []SegmentCount
	for rows.Next() {
		var c SegmentCount
		if err := rows.Scan(&c.Segment, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan segment count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// ActiveSessionCount counts persisted sessions that have not expired.
func (r *SQLAnalyticsRepository) ActiveSessionCount(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE merged = 0 AND expires_at >= ?`, now.UnixMilli()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}
