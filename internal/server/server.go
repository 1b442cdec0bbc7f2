// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"github.com/MahdiBaghbani/brokerauth-go/internal/api"
	"github.com/MahdiBaghbani/brokerauth-go/internal/config"
	"github.com/MahdiBaghbani/brokerauth-go/internal/identity"
	"github.com/MahdiBaghbani/brokerauth-go/internal/logutil"
	"github.com/MahdiBaghbani/brokerauth-go/internal/policy"
)

// ErrMissingDep marks a nil required dependency at construction.
var ErrMissingDep = errors.New("missing required dependency")

// Deps holds the decision pipeline the server fronts.
type Deps struct {
	// Resolver maps broker credentials to principals.
	Resolver *identity.Resolver

	// Engine produces the allow/deny verdicts.
	Engine *policy.Engine
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg            *config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	trustedProxies *TrustedProxies
	brokerHandler  *api.BrokerHandler
}

// New creates a Server. Returns an error if a required dependency is
// missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}
	logger = logutil.NoopIfNil(logger)

	s := &Server{
		cfg:            cfg,
		logger:         logger,
		trustedProxies: NewTrustedProxies(cfg.Server.TrustedProxies),
		brokerHandler:  api.NewBrokerHandler(deps.Resolver, deps.Engine),
	}

	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.setupRoutes(),
		// The broker sends tiny forms and expects tiny bodies; the
		// read/write bounds only have to outlast the per-request
		// deadline.
		ReadTimeout:  cfg.RequestTimeout() + 5*time.Second,
		WriteTimeout: cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start opens the listener and serves until Shutdown. The listener is
// wrapped in a connection limiter so saturation back-pressures the
// broker at accept time instead of exhausting file descriptors.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	if s.cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.Server.MaxConnections)
	}

	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"max_connections", s.cfg.Server.MaxConnections,
		"request_timeout", s.cfg.RequestTimeout().String(),
	)
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// validateDeps checks that all required dependencies are provided.
func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.Resolver == nil {
		return fmt.Errorf("%w: Resolver", ErrMissingDep)
	}
	if deps.Engine == nil {
		return fmt.Errorf("%w: Engine", ErrMissingDep)
	}
	return nil
}
