// Package database provides the core functionality for creating and
// managing database connections in a clean, isolated manner.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
}

// NewConnection establishes a new database connection for the specified driver.
func NewConnection(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(config.DBConnMaxLifetimeMinutes) * time.Minute)

	return &DB{db}, nil
}

// NewConnectionWithLogger establishes a new database connection for the
// specified driver with logging, applies WAL mode for the sqlite driver,
// and ensures the schema exists.
func NewConnectionWithLogger(driverName, dataSourceName string, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating new database connection", "driverName", driverName)

	db, err := NewConnection(driverName, dataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", driverName)
		return nil, err
	}

	if driverName == "sqlite3" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		logger.Database().Error("Failed to apply schema", "error", err.Error())
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Database().Info("Database connection established", "driverName", driverName, "duration", time.Since(start))
	return db, nil
}

// Open selects the driver from configuration: libsql when TURSO_DATABASE_URL
// is set, the embedded sqlite3 file otherwise.
func Open(logger *logging.ChanneledLogger) (*DB, error) {
	if config.TursoDatabaseURL != "" {
		dsn := config.TursoDatabaseURL
		if config.TursoAuthToken != "" {
			dsn += "?authToken=" + config.TursoAuthToken
		}
		return NewConnectionWithLogger("libsql", dsn, logger)
	}
	return NewConnectionWithLogger(config.DBDriver, config.DBPath, logger)
}
