// Package experiments provides SQL persistence for experiment
// configuration and the assignments table that anchors assignment
// stability across process restarts.
package experiments

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PulseTrack/pulsetrack-go/internal/domain/entities/experiment"
	"github.com/PulseTrack/pulsetrack-go/internal/domain/errs"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// SQLExperimentRepository reads experiment configuration and owns the
// assignments table.
type SQLExperimentRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLExperimentRepository creates a new instance of the repository.
func NewSQLExperimentRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLExperimentRepository {
	return &SQLExperimentRepository{db: db, logger: logger}
}

// GetExperiment loads one experiment by ID.
func (r *SQLExperimentRepository) GetExperiment(ctx context.Context, experimentID string) (*experiment.Experiment, error) {
	const query = `
		SELECT id, slug, experiment_type, target_id, traffic_allocation, status, starts_at, ends_at
		FROM experiments WHERE id = ?`

	var exp experiment.Experiment
	var expType, status string
	var startsAt, endsAt sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, experimentID).Scan(
		&exp.ID, &exp.Slug, &expType, &exp.TargetID,
		&exp.TrafficAllocation, &status, &startsAt, &endsAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrExperimentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment %s: %w", experimentID, err)
	}

	exp.Type = experiment.Type(expType)
	exp.Status = experiment.Status(status)
	if startsAt.Valid {
		t := time.UnixMilli(startsAt.Int64)
		exp.StartsAt = &t
	}
	if endsAt.Valid {
		t := time.UnixMilli(endsAt.Int64)
		exp.EndsAt = &t
	}
	return &exp, nil
}

// ListVariants returns all variants of an experiment.
func (r *SQLExperimentRepository) ListVariants(ctx context.Context, experimentID string) ([]experiment.Variant, error) {
	const query = `
		SELECT id, experiment_id, traffic_pct, is_control, config
		FROM experiment_variants WHERE experiment_id = ? ORDER BY id`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	var variants []experiment.Variant
	for rows.Next() {
		var v experiment.Variant
		var isControl int
		var configJSON sql.NullString
		if err := rows.Scan(&v.ID, &v.ExperimentID, &v.TrafficPct, &isControl, &configJSON); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		v.IsControl = isControl != 0
		if configJSON.Valid && configJSON.String != "" {
			if err := json.Unmarshal([]byte(configJSON.String), &v.Config); err != nil {
				r.logger.Database().Error("Failed to unmarshal variant config",
					"error", err.Error(), "variantId", v.ID)
			}
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration)
	}
	return variants, nil
}

// GetAssignment returns the persisted assignment for a (session,
// experiment) pair, or nil when none exists.
func (r *SQLExperimentRepository) GetAssignment(ctx context.Context, sessionID, experimentID string) (*experiment.Assignment, error) {
	const query = `
		SELECT session_id, experiment_id, variant_id, user_id, assigned_at
		FROM assignments WHERE session_id = ? AND experiment_id = ?`

	var a experiment.Assignment
	var userID sql.NullString
	var assignedAt int64

	err := r.db.QueryRowContext(ctx, query, sessionID, experimentID).Scan(
		&a.SessionID, &a.ExperimentID, &a.VariantID, &userID, &assignedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if userID.Valid {
		a.UserID = userID.String
	}
	a.AssignedAt = time.UnixMilli(assignedAt)
	return &a, nil
}

// InsertAssignment persists a new assignment. The primary key on
// (session_id, experiment_id) makes concurrent inserts race-safe: the
// first writer wins and every caller re-reads the winning row.
func (r *SQLExperimentRepository) InsertAssignment(ctx context.Context, a *experiment.Assignment) (*experiment.Assignment, error) {
	const query = `
		INSERT OR IGNORE INTO assignments (session_id, experiment_id, variant_id, user_id, assigned_at)
		VALUES (?, ?, ?, ?, ?)`

	var userID any
	if a.UserID != "" {
		userID = a.UserID
	}
	if _, err := r.db.ExecContext(ctx, query,
		a.SessionID, a.ExperimentID, a.VariantID, userID, a.AssignedAt.UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("failed to insert assignment: %w", err)
	}

	winner, err := r.GetAssignment(ctx, a.SessionID, a.ExperimentID)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, fmt.Errorf("assignment vanished after insert for session %s", a.SessionID)
	}
	return winner, nil
}

// CreateExperiment stores experiment configuration. Admin CRUD lives
// outside this engine; this exists for provisioning and tests.
func (r *SQLExperimentRepository) CreateExperiment(ctx context.Context, exp *experiment.Experiment) error {
	const query = `
		INSERT INTO experiments (id, slug, experiment_type, target_id, traffic_allocation, status, starts_at, ends_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var startsAt, endsAt any
	if exp.StartsAt != nil {
		startsAt = exp.StartsAt.UnixMilli()
	}
	if exp.EndsAt != nil {
		endsAt = exp.EndsAt.UnixMilli()
	}
	_, err := r.db.ExecContext(ctx, query,
		exp.ID, exp.Slug, string(exp.Type), exp.TargetID,
		exp.TrafficAllocation, string(exp.Status), startsAt, endsAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}
	return nil
}

// CreateVariant stores one variant of an experiment.
func (r *SQLExperimentRepository) CreateVariant(ctx context.Context, v *experiment.Variant) error {
	const query = `
		INSERT INTO experiment_variants (id, experiment_id, traffic_pct, is_control, config)
		VALUES (?, ?, ?, ?, ?)`

	var configJSON any
	if len(v.Config) > 0 {
		raw, err := json.Marshal(v.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal variant config: %w", err)
		}
		configJSON = string(raw)
	}
	isControl := 0
	if v.IsControl {
		isControl = 1
	}
	if _, err := r.db.ExecContext(ctx, query,
		v.ID, v.ExperimentID, v.TrafficPct, isControl, configJSON,
	); err != nil {
		return fmt.Errorf("failed to create variant: %w", err)
	}
	return nil
}
