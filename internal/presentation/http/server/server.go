// Package server owns the HTTP listener lifecycle.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/PulseTrack/pulsetrack-go/internal/application/container"
	"github.com/PulseTrack/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseTrack/pulsetrack-go/internal/presentation/http/routes"
	"github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// Server binds the engine's route table to a configured http.Server.
type Server struct {
	httpServer *http.Server
	logger     *logging.ChanneledLogger
}

// New builds the listener. Read/write/idle timeouts come from
// configuration so slow clients cannot pin connections indefinitely.
func New(port string, appContainer *container.Container) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      routes.SetupRoutes(appContainer),
			ReadTimeout:  config.ServerReadTimeout,
			WriteTimeout: config.ServerWriteTimeout,
			IdleTimeout:  config.ServerIdleTimeout,
		},
		logger: appContainer.Logger,
	}
}

// Start serves requests until Stop is called. A clean shutdown is not
// reported as an error.
func (s *Server) Start() error {
	if s.logger != nil {
		s.logger.System().Info("HTTP listener starting", "addr", s.httpServer.Addr)
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop refuses new connections and drains in-flight requests until ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.logger != nil {
		s.logger.System().Info("HTTP listener stopping")
	}
	return s.httpServer.Shutdown(ctx)
}
