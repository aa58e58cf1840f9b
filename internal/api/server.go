// Package api provides the HTTP REST API and WebSocket server for Trazo Core.
//
// It exposes recipe authoring, schedule and activation management, override
// control, effective-setpoint queries, signal injection, and the audit ledger
// to operator interfaces (grower dashboard, facility admin).
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/arbiter"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/audit"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/config"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/logging"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/infrastructure/mqtt"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/override"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/recipe"
	"github.com/anejaagam/trazo-mvp-v1-sub007/internal/schedule"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Recipes   *recipe.Store
	Overrides *override.Manager
	Schedules *schedule.Manager
	Engine    *arbiter.Engine
	Ledger    *audit.Ledger
	Safety    *arbiter.SignalBoard
	EStop     *arbiter.SignalBoard
	DR        *arbiter.DirectiveBoard
	MQTT      *mqtt.Client // optional; enables setpoint relay to WebSocket clients
	Version   string
}

// Server is the HTTP API server for Trazo Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	recipes   *recipe.Store
	overrides *override.Manager
	schedules *schedule.Manager
	engine    *arbiter.Engine
	ledger    *audit.Ledger
	safety    *arbiter.SignalBoard
	estop     *arbiter.SignalBoard
	dr        *arbiter.DirectiveBoard
	mqtt      *mqtt.Client
	version   string
	startedAt time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, domain managers, ledger)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Recipes == nil {
		return nil, fmt.Errorf("recipe store is required")
	}
	if deps.Overrides == nil {
		return nil, fmt.Errorf("override manager is required")
	}
	if deps.Schedules == nil {
		return nil, fmt.Errorf("schedule manager is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("arbitration engine is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("audit ledger is required")
	}
	// MQTT is optional; without it the setpoint WebSocket relay is disabled
	// but every REST endpoint still functions.

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		recipes:   deps.Recipes,
		overrides: deps.Overrides,
		schedules: deps.Schedules,
		engine:    deps.Engine,
		ledger:    deps.Ledger,
		safety:    deps.Safety,
		estop:     deps.EStop,
		dr:        deps.DR,
		mqtt:      deps.MQTT,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to MQTT target
// topics for real-time WebSocket broadcast, and launches the HTTP listener
// in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.startedAt = time.Now()

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Relay every durably appended audit event to subscribed clients.
	s.ledger.SetNotifier(func(e audit.Event) {
		s.hub.Broadcast(ChannelAuditAppended, e)
	})

	// Subscribe to published setpoint targets for WebSocket broadcast
	if err := s.subscribeSetpointUpdates(); err != nil {
		s.logger.Warn("failed to subscribe to setpoint updates for WebSocket", "error", err)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Hub returns the WebSocket hub, nil until Start() is called.
// Exposed so event sources outside the server (the arbitration engine's
// publisher path, sweep results) can broadcast to connected clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
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

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
