// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PulseTrack/pulsetrack-go/internal/application/container"
	"github.com/PulseTrack/pulsetrack-go/internal/presentation/http/handlers"
	"github.com/PulseTrack/pulsetrack-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	eventHandlers := handlers.NewEventHandlers(container.SessionService, container.Logger, container.PerfTracker)
	sessionHandlers := handlers.NewSessionHandlers(container.SessionService, container.Logger, container.PerfTracker)
	experimentHandlers := handlers.NewExperimentHandlers(container.ExperimentService, container.Logger, container.PerfTracker)
	analyticsHandlers := handlers.NewAnalyticsHandlers(container.AnalyticsService, container.Logger, container.PerfTracker)
	healthHandlers := handlers.NewHealthHandlers(container)

	r.GET("/health", healthHandlers.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(container.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	{
		api.POST("/events", eventHandlers.PostEvent)
		api.POST("/events/batch", eventHandlers.PostEventBatch)

		api.POST("/sessions", sessionHandlers.PostSession)
		api.GET("/sessions/:id", sessionHandlers.GetSession)
		api.POST("/sessions/merge", sessionHandlers.PostMerge)

		api.POST("/experiments/:id/assign", experimentHandlers.PostAssign)
		api.POST("/experiments/:id/events", experimentHandlers.PostOutcome)
		api.GET("/experiments/:id/analytics", analyticsHandlers.GetExperimentAnalytics)

		api.GET("/analytics/summary", analyticsHandlers.GetSummary)
	}

	return r
}
