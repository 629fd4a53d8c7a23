package database

// schema is applied on every open; all statements are idempotent.
//
// behavior_events dedupes on (session_id, created_at, event_type) so the
// at-least-once batcher can re-deliver a batch without duplicating rows.
// assignments enforces the one-variant-per-(session, experiment) invariant
// at the storage layer.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    user_id TEXT,
    segment TEXT NOT NULL DEFAULT 'new_visitor',
    page_views INTEGER NOT NULL DEFAULT 0,
    interactions INTEGER NOT NULL DEFAULT 0,
    total_time_ms INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    merged INTEGER NOT NULL DEFAULT 0,
    merged_into TEXT,
    created_at INTEGER NOT NULL,
    last_activity INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS behavior_events (
    id TEXT PRIMARY KEY,
    batch_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    page_slug TEXT,
    user_id TEXT,
    payload TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_behavior_events_session ON behavior_events(session_id);
CREATE INDEX IF NOT EXISTS idx_behavior_events_batch ON behavior_events(batch_id);
CREATE INDEX IF NOT EXISTS idx_behavior_events_created ON behavior_events(created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_behavior_events_dedup
    ON behavior_events(session_id, created_at, event_type);

CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    slug TEXT UNIQUE NOT NULL,
    experiment_type TEXT NOT NULL,
    target_id TEXT NOT NULL,
    traffic_allocation INTEGER NOT NULL DEFAULT 100,
    status TEXT NOT NULL DEFAULT 'draft',
    starts_at INTEGER,
    ends_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS experiment_variants (
    id TEXT PRIMARY KEY,
    experiment_id TEXT NOT NULL,
    traffic_pct INTEGER NOT NULL,
    is_control INTEGER NOT NULL DEFAULT 0,
    config TEXT,
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_variants_experiment ON experiment_variants(experiment_id);

CREATE TABLE IF NOT EXISTS assignments (
    session_id TEXT NOT NULL,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    user_id TEXT,
    assigned_at INTEGER NOT NULL,
    PRIMARY KEY (session_id, experiment_id)
);

CREATE INDEX IF NOT EXISTS idx_assignments_experiment ON assignments(experiment_id);

CREATE TABLE IF NOT EXISTS experiment_events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    value REAL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_experiment_events_experiment
    ON experiment_events(experiment_id, variant_id, event_type);
CREATE INDEX IF NOT EXISTS idx_experiment_events_created ON experiment_events(created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_experiment_events_dedup
    ON experiment_events(session_id, experiment_id, event_type, created_at);

CREATE TABLE IF NOT EXISTS batch_ledger (
    batch_id TEXT PRIMARY KEY,
    event_count INTEGER NOT NULL,
    flushed_at INTEGER NOT NULL,
    processed_at INTEGER
);
`
