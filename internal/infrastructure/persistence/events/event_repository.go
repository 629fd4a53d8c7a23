// Package events provides the concrete SQL-based implementations for
// behavior and experiment event persistence.
//
// Writes happen in bulk, one transaction per batch, with INSERT OR IGNORE
// against the dedupe index so the at-least-once batcher can re-deliver a
// failed batch without duplicating rows.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/experiment"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// SQLEventRepository handles event persistence to the durable log.
type SQLEventRepository struct {
	db      *database.DB
	logger  *logging.ChanneledLogger
	entropy *ulid.MonotonicEntropy
}

// NewSQLEventRepository creates a new instance of the repository.
func NewSQLEventRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLEventRepository {
	return &SQLEventRepository{
		db:      db,
		logger:  logger,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (r *SQLEventRepository) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
}

// WriteBatch durably writes one flushed batch of behavior events in a
// single transaction and records the batch in the ledger.
func (r *SQLEventRepository) WriteBatch(ctx context.Context, batchID string, evts []session.BehaviorEvent) error {
	if len(evts) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR IGNORE INTO behavior_events (id, batch_id, session_id, event_type, page_slug, user_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, evt := range evts {
		payload, err := json.Marshal(evt.Data)
		if err != nil {
			r.logger.Database().Error("Failed to marshal event payload",
				"error", err.Error(),
				"sessionId", evt.SessionID,
				"eventType", evt.Type)
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			r.newID(),
			batchID,
			evt.SessionID,
			string(evt.Type),
			nullable(evt.PageSlug),
			nullable(evt.UserID),
			string(payload),
			evt.Timestamp.UnixMilli(),
		); err != nil {
			return fmt.Errorf("failed to insert behavior event: %w", err)
		}
	}

	const ledgerQuery = `
		INSERT OR IGNORE INTO batch_ledger (batch_id, event_count, flushed_at)
		VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, ledgerQuery, batchID, len(evts), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to record batch ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Batch insert completed",
		"batchId", batchID,
		"eventCount", len(evts),
		"duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration)
	}
	return nil
}

// StoreExperimentEvent appends one experiment outcome record. Re-delivery
// of the same (session, experiment, type, timestamp) tuple is a no-op.
func (r *SQLEventRepository) StoreExperimentEvent(ctx context.Context, evt *experiment.Event) error {
	const query = `
		INSERT OR IGNORE INTO experiment_events (id, session_id, experiment_id, variant_id, event_type, value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		r.newID(),
		evt.SessionID,
		evt.ExperimentID,
		evt.VariantID,
		string(evt.Type),
		evt.Value,
		evt.Timestamp.UnixMilli(),
	)
	if err != nil {
		r.logger.Database().Error("Experiment event insert failed",
			"error", err.Error(),
			"experimentId", evt.ExperimentID,
			"variantId", evt.VariantID,
			"eventType", evt.Type)
		return fmt.Errorf("failed to store experiment event: %w", err)
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration)
	}
	return nil
}

// MarkBatchProcessed stamps a batch as processed by the post-flush step.
// It returns false when the batch was already processed, which makes the
// processing step idempotent per batch identifier.
func (r *SQLEventRepository) MarkBatchProcessed(ctx context.Context, batchID string) (bool, error) {
	const query = `UPDATE batch_ledger SET processed_at = ? WHERE batch_id = ? AND processed_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, time.Now().UnixMilli(), batchID)
	if err != nil {
		return false, fmt.Errorf("failed to mark batch processed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountEventsForBatch returns how many behavior events a batch landed.
func (r *SQLEventRepository) CountEventsForBatch(ctx context.Context, batchID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM behavior_events WHERE batch_id = ?`, batchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count batch events: %w", err)
	}
	return count, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
