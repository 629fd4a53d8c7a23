// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PulseTrack/pulsetrack-go/internal/application/container"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/persistence/database"
	"github.com/PulseTrack/pulsetrack-go/internal/presentation/http/server"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// Initialize performs the complete startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 1: Initialize channeled logging
	log.Println("Initializing...")
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.Startup().Info("Channeled logging initialized")

	// Step 2: Open the database and apply schema
	logger.Startup().Info("Opening database...")
	db, err := database.Open(logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	logger.Startup().Info("Database ready", "driver", config.DBDriver)

	// Step 3: Create dependency injection container
	logger.Startup().Info("Initializing dependency injection container...")
	appContainer := container.NewContainer(db, logger)
	logger.Startup().Info("Container initialization complete")

	// Step 4: Start the ingestion flush sweep
	logger.Startup().Info("Starting ingestion pipeline...",
		"flushSize", config.BatchFlushSize,
		"flushWindow", config.BatchFlushWindow)
	go appContainer.Batcher.Start(ctx)

	// Step 5: Start the session expiry sweeper
	logger.Startup().Info("Starting session sweeper...", "interval", config.SessionSweepInterval)
	go appContainer.SessionService.StartSweeper(ctx, config.SessionSweepInterval)

	// Step 6: Start HTTP server
	logger.Startup().Info("Starting HTTP server...")
	port := config.Port
	httpServer := server.New(port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	// Stop accepting requests first so no new events arrive mid-drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	// Stop background sweeps, then flush every buffered event.
	cancelBackgroundTasks()
	logger.Shutdown().Info("Draining ingestion buffers...")
	appContainer.Batcher.Drain(shutdownCtx)
	logger.Shutdown().Info("Ingestion buffers drained")

	logger.Shutdown().Info("Waiting for in-flight outcome writes...")
	appContainer.ExperimentService.Drain()

	logger.Shutdown().Info("Closing database...")
	if err := db.Close(); err != nil {
		logger.Shutdown().Error("Error closing database", "error", err.Error())
	}

	elapsed := time.Since(start)
	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", elapsed,
		"shutdownDuration", time.Since(shutdownStart))
	logger.Close()

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
