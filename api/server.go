// Package api provides the HTTP REST API for canvasd.
//
// This package exposes the canvas engine via HTTP endpoints, enabling
// programmatic access from chat hosts and automation pipelines.
//
//	GET    /health                                →  liveness probe
//	GET    /ready                                 →  readiness probe
//	POST   /api/sessions                          →  create session
//	GET    /api/sessions/{id}                     →  current signal snapshot
//	DELETE /api/sessions/{id}                     →  tear session down
//	POST   /api/sessions/{id}/messages            →  ingest stream snapshot
//	GET    /api/sessions/{id}/events              →  SSE signal stream
//	POST   /api/sessions/{id}/show                →  show canvas
//	POST   /api/sessions/{id}/dismiss             →  dismiss canvas
//	DELETE /api/sessions/{id}/artifacts/{artifactID} → remove one artifact
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - ratelimit.go: per-IP rate limiting middleware
//   - health.go: health check endpoints (/health, /ready)
//   - session.go: session management endpoints
//   - events.go: SSE event stream endpoint
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vizorai/canvas/internal/canvas"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Config holds server-level settings.
type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	TrustProxy     bool
}

// Server is the HTTP server for the canvas REST API.
type Server struct {
	mux     *http.ServeMux
	limiter *ipLimiter
	logger  *slog.Logger
	cfg     Config

	health  *HealthHandler
	session *SessionHandler
	events  *EventsHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(manager *canvas.Manager, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 30
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:     mux,
		limiter: newIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		logger:  logger,
		cfg:     cfg,
		health:  NewHealthHandler(manager, logger),
		session: NewSessionHandler(manager, logger),
		events:  NewEventsHandler(manager, logger),
	}

	s.health.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)
	s.events.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → rate limit → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		s.limiter.middleware(s.cfg.TrustProxy, s.logger),
	)
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		// WriteTimeout stays zero: the event stream holds responses open
		// indefinitely and a global write deadline would sever it.
		IdleTimeout: IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
