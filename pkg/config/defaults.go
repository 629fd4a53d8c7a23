// Package config provides centralized default values for PulseTrack
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		if err := godotenv.Load(); err == nil {
			log.Println("Loading configuration overrides from .env file...")
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseInt(valStr, 10, 64); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if valStr := os.Getenv(key); valStr != "" {
		parts := strings.Split(valStr, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			log.Printf("Config override: %s=%s", key, valStr)
			return out
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	AllowedOrigins     []string

	// Database Configuration
	DBDriver                 string
	DBPath                   string
	TursoDatabaseURL         string
	TursoAuthToken           string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int

	// Session Configuration
	SessionTTL           time.Duration
	SessionHistoryLimit  int
	MaxSessions          int
	SessionTokenSecret   string
	SessionTokenTTL      time.Duration
	SessionSweepInterval time.Duration
	SnapshotWriteTimeout time.Duration

	// Segment Thresholds
	// Defaults preserve the behavior-threshold constants observed in
	// production traffic; override via env when product requirements change.
	SegmentBuyerClicks         int
	SegmentEngagedPageViews    int
	SegmentEngagedTimeMs       int64
	SegmentResearcherQuizzes   int
	SegmentResearcherMaxClicks int

	// Ingestion Pipeline
	BatchFlushSize      int
	BatchFlushWindow    time.Duration
	BatchSweepInterval  time.Duration
	BatchMaxRetries     int
	BatchRetryBaseDelay time.Duration
	BatchRetryMaxDelay  time.Duration
	ProcessingDelay     time.Duration

	// Experiments
	OutcomeWriteTimeout time.Duration

	// Analytics
	AnalyticsQueryTimeout time.Duration
	SlowQueryThreshold    time.Duration
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{
		"http://localhost:3000",
		"http://localhost:4321",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:4321",
	})

	// Database Configuration
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBPath = getEnvString("DB_PATH", "pulsetrack.db")
	TursoDatabaseURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoAuthToken = getEnvString("TURSO_AUTH_TOKEN", "")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)

	// Session Configuration
	SessionTTL = time.Duration(getEnvInt("SESSION_TTL_HOURS", 24)) * time.Hour
	SessionHistoryLimit = getEnvInt("SESSION_HISTORY_LIMIT", 100)
	MaxSessions = getEnvInt("MAX_SESSIONS", 50000)
	SessionTokenSecret = getEnvString("SESSION_TOKEN_SECRET", "insecure-dev-secret")
	SessionTokenTTL = time.Duration(getEnvInt("SESSION_TOKEN_TTL_HOURS", 24)) * time.Hour
	SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", 30*time.Minute)
	SnapshotWriteTimeout = getEnvDuration("SNAPSHOT_WRITE_TIMEOUT", 5*time.Second)

	// Segment Thresholds
	SegmentBuyerClicks = getEnvInt("SEGMENT_BUYER_CLICKS", 5)
	SegmentEngagedPageViews = getEnvInt("SEGMENT_ENGAGED_PAGE_VIEWS", 10)
	SegmentEngagedTimeMs = getEnvInt64("SEGMENT_ENGAGED_TIME_MS", 600000)
	SegmentResearcherQuizzes = getEnvInt("SEGMENT_RESEARCHER_QUIZZES", 2)
	SegmentResearcherMaxClicks = getEnvInt("SEGMENT_RESEARCHER_MAX_CLICKS", 3)

	// Ingestion Pipeline
	BatchFlushSize = getEnvInt("BATCH_FLUSH_SIZE", 100)
	BatchFlushWindow = getEnvDuration("BATCH_FLUSH_WINDOW", 5*time.Second)
	BatchSweepInterval = getEnvDuration("BATCH_SWEEP_INTERVAL", 1*time.Second)
	BatchMaxRetries = getEnvInt("BATCH_MAX_RETRIES", 5)
	BatchRetryBaseDelay = getEnvDuration("BATCH_RETRY_BASE_DELAY", 100*time.Millisecond)
	BatchRetryMaxDelay = getEnvDuration("BATCH_RETRY_MAX_DELAY", 10*time.Second)
	ProcessingDelay = getEnvDuration("PROCESSING_DELAY", 500*time.Millisecond)

	// Experiments
	OutcomeWriteTimeout = getEnvDuration("OUTCOME_WRITE_TIMEOUT", 5*time.Second)

	// Analytics
	AnalyticsQueryTimeout = getEnvDuration("ANALYTICS_QUERY_TIMEOUT", 10*time.Second)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 50*time.Millisecond)
}
