// Package sessions provides SQL persistence for durable session
// snapshots. The in-memory store is canonical for live traffic; rows
// here back it across restarts and record merge tombstones.
package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/PulseTrack/pulsetrack-go/internal/domain/entities/session"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// SQLSessionRepository persists session snapshots.
type SQLSessionRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLSessionRepository creates a new instance of the repository.
func NewSQLSessionRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLSessionRepository {
	return &SQLSessionRepository{db: db, logger: logger}
}

// UpsertSnapshot writes the full session snapshot, replacing any prior
// row for the same session identifier.
func (r *SQLSessionRepository) UpsertSnapshot(ctx context.Context, s *domain.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}

	const query = `
		INSERT INTO sessions (session_id, user_id, segment, page_views, interactions, total_time_ms, payload, merged, merged_into, created_at, last_activity, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			segment = excluded.segment,
			page_views = excluded.page_views,
			interactions = excluded.interactions,
			total_time_ms = excluded.total_time_ms,
			payload = excluded.payload,
			merged = excluded.merged,
			merged_into = excluded.merged_into,
			last_activity = excluded.last_activity,
			expires_at = excluded.expires_at`

	merged := 0
	if s.Merged {
		merged = 1
	}
	var mergedInto, userID any
	if s.MergedInto != "" {
		mergedInto = s.MergedInto
	}
	if s.UserID != "" {
		userID = s.UserID
	}

	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		s.ID, userID, s.Segment,
		s.PageViews, s.Interactions, s.TotalTimeOnSiteMs,
		string(payload), merged, mergedInto,
		s.CreatedAt.UnixMilli(), s.LastActivity.UnixMilli(), s.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		r.logger.Database().Error("Session snapshot upsert failed",
			"error", err.Error(), "sessionId", s.ID)
		return fmt.Errorf("failed to upsert session snapshot: %w", err)
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration)
	}
	return nil
}

// Load restores one session snapshot, or nil when none exists.
func (r *SQLSessionRepository) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	const query = `SELECT payload FROM sessions WHERE session_id = ?`

	var payload string
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var s domain.Session
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}
	return &s, nil
}

// DeleteExpired removes sessions whose TTL lapsed before the cutoff,
// keeping merge tombstones so identity resolution stays auditable.
func (r *SQLSessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at < ? AND merged = 0`

	result, err := r.db.ExecContext(ctx, query, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
