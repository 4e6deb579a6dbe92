// Package api provides the HTTP REST API and WebSocket server for
// Halcyon Core.
//
// It exposes the instrument registry (listing signals, pulling
// readings, writing values), motor position snapshots, and a WebSocket
// stream of live readings to GUIs.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/config"
	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/logging"
	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/mqtt"
	"github.com/halcyonbeam/halcyon-core/internal/instrument"
	"github.com/halcyonbeam/halcyon-core/internal/positions"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SetpointRecorder receives every value successfully commanded through
// the API, so operator writes can be correlated against the readings
// that followed. Satisfied by *influxdb.Client; nil disables setpoint
// history.
type SetpointRecorder interface {
	WriteSetpoint(signalName string, value float64)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Registry  *instrument.Registry
	Positions *positions.Service
	MQTT      *mqtt.Client // optional: enables WebSocket reading relay
	Setpoints SetpointRecorder
	Version   string
}

// Server is the HTTP API server for Halcyon Core.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	registry  *instrument.Registry
	positions *positions.Service
	mqtt      *mqtt.Client
	setpoints SetpointRecorder
	version   string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates an API server with the given dependencies. The server is
// not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("instrument registry is required")
	}
	// MQTT, positions, and setpoint history are optional; the matching
	// surfaces degrade.

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		positions: deps.Positions,
		mqtt:      deps.MQTT,
		setpoints: deps.Setpoints,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections. It starts the WebSocket
// hub, subscribes to the retained reading topics for the WebSocket
// relay, and launches the HTTP listener in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	if err := s.subscribeReadingUpdates(); err != nil {
		s.logger.Warn("reading relay unavailable", "error", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting for in-flight
// requests before closing remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
