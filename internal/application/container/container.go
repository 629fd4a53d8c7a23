// Package container provides dependency injection for all singleton services
package container

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/PulseTrack/pulsetrack-go/internal/application/services"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/caching/stores"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/ingestion"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/monitoring"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/performance"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/analytics"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/events"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/experiments"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/sessions"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services
	SessionService         *services.SessionService
	ExperimentService      *services.ExperimentService
	AnalyticsService       *services.AnalyticsService
	EventProcessingService *services.EventProcessingService

	// Infrastructure
	DB            *database.DB
	SessionsStore *stores.SessionsStore
	Batcher       *ingestion.Batcher
	Logger        *logging.ChanneledLogger
	PerfTracker   *performance.Tracker
	Metrics       *monitoring.Metrics
	Registry      *prometheus.Registry
}

// NewContainer creates and wires all singleton services
func NewContainer(db *database.DB, logger *logging.ChanneledLogger) *Container {
	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)
	perfTracker := performance.NewTracker()

	sessionsStore := stores.NewSessionsStore(config.SessionTTL, logger)

	eventRepo := events.NewSQLEventRepository(db, logger)
	sessionRepo := sessions.NewSQLSessionRepository(db, logger)
	experimentRepo := experiments.NewSQLExperimentRepository(db, logger)
	analyticsRepo := analytics.NewSQLAnalyticsRepository(db, logger)

	batcher := ingestion.NewBatcher(eventRepo, ingestion.Config{
		FlushSize:       config.BatchFlushSize,
		FlushWindow:     config.BatchFlushWindow,
		SweepInterval:   config.BatchSweepInterval,
		MaxRetries:      config.BatchMaxRetries,
		RetryBaseDelay:  config.BatchRetryBaseDelay,
		RetryMaxDelay:   config.BatchRetryMaxDelay,
		ProcessingDelay: config.ProcessingDelay,
	}, logger, metrics)

	processingService := services.NewEventProcessingService(eventRepo, logger)
	batcher.SetProcessFunc(processingService.ProcessBatch)

	sessionService := services.NewSessionService(sessionsStore, sessionRepo, batcher, logger, metrics)
	experimentService := services.NewExperimentService(experimentRepo, eventRepo, sessionsStore, logger, metrics)
	analyticsService := services.NewAnalyticsService(analyticsRepo, experimentRepo, logger, perfTracker)

	return &Container{
		SessionService:         sessionService,
		ExperimentService:      experimentService,
		AnalyticsService:       analyticsService,
		EventProcessingService: processingService,

		DB:            db,
		SessionsStore: sessionsStore,
		Batcher:       batcher,
		Logger:        logger,
		PerfTracker:   perfTracker,
		Metrics:       metrics,
		Registry:      registry,
	}
}
