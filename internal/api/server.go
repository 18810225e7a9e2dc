package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/claimd/internal/claim"
	"github.com/nerrad567/claimd/internal/infrastructure/config"
	"github.com/nerrad567/claimd/internal/infrastructure/logging"
	"github.com/nerrad567/claimd/internal/ratelimit"
)

// ClaimService is the subset of claim.Service the gateway calls.
type ClaimService interface {
	Issue(ctx context.Context) (claim.IssuedToken, error)
	Register(ctx context.Context, req claim.RegisterRequest) (*claim.DeviceRecord, error)
	Validate(ctx context.Context, raw string) (bool, error)
	Claim(ctx context.Context, raw string) (*claim.DeviceRecord, error)
	List(ctx context.Context, filter claim.ListFilter) (*claim.DevicePage, error)
}

// PoolHealth reports on the device store's connection pool.
// Satisfied by *database.Manager.
type PoolHealth interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
	Faults() int64
}

// RateLimiter bounds attempts per key. Satisfied by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) ratelimit.Result
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Service ClaimService
	Pool    PoolHealth
	Limiter RateLimiter // optional
	Version string
}

// Server is the HTTP gateway for claimd.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	service  ClaimService
	pool     PoolHealth
	limiter  RateLimiter
	version  string
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("claim service is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("pool health is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		service: deps.Service,
		pool:    deps.Pool,
		limiter: deps.Limiter,
		version: deps.Version,
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in a background goroutine.
// It fails immediately if the address cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Close(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
