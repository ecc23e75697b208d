// Package api provides the HTTP REST API and WebSocket server for TrackerLink.
//
// It exposes tracker discovery, pairing flows, configuration entries and the
// audit trail to operator tooling, and streams registry and flow events to
// WebSocket subscribers.
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

	"github.com/nerrad567/trackerlink-core/internal/audit"
	"github.com/nerrad567/trackerlink-core/internal/auth"
	"github.com/nerrad567/trackerlink-core/internal/discovery"
	"github.com/nerrad567/trackerlink-core/internal/entry"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/config"
	"github.com/nerrad567/trackerlink-core/internal/infrastructure/logging"
	"github.com/nerrad567/trackerlink-core/internal/pairing"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Domain   string

	Intake  *discovery.Intake
	Manager *pairing.Manager
	Entries entry.Store
	Audit   audit.Repository // optional: GET /audit returns 503 without it
	Trail   *audit.Trail     // optional: login and entry changes are not recorded without it

	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for TrackerLink.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	domain   string
	intake   *discovery.Intake
	registry *discovery.Registry
	manager  *pairing.Manager
	entries  entry.Store
	audit    audit.Repository
	trail    *audit.Trail
	auth     *auth.Authenticator
	tickets  *ticketStore
	version  string
	server   *http.Server
	hub      *Hub
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Intake == nil {
		return nil, fmt.Errorf("discovery intake is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("pairing manager is required")
	}
	if deps.Entries == nil {
		return nil, fmt.Errorf("entry store is required")
	}
	if deps.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		domain:   deps.Domain,
		intake:   deps.Intake,
		registry: deps.Intake.Registry(),
		manager:  deps.Manager,
		entries:  deps.Entries,
		audit:    deps.Audit,
		trail:    deps.Trail,
		auth:     auth.NewAuthenticator(deps.Security),
		tickets:  newTicketStore(),
		version:  deps.Version,
		hub:      deps.ExternalHub,
	}
	return s, nil
}

// Hub returns the WebSocket hub. It is nil until Start when no external hub
// was supplied.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running and responsive.
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

// record writes an audit log when a trail is configured. The user id is
// taken from the request's verified claims when the log has none.
func (s *Server) record(ctx context.Context, log *audit.AuditLog) {
	if s.trail == nil {
		return
	}
	if log.UserID == "" {
		log.UserID = subjectFromContext(ctx)
	}
	if log.Source == "" {
		log.Source = discovery.SourceAPI
	}
	s.trail.Record(ctx, log)
}
