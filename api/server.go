// Package api exposes the knowledge base's observability surface over
// HTTP: health probes and the context-tracking insights endpoints.
//
// Endpoints:
//
//	GET  /health        → liveness probe
//	GET  /ready         → readiness probe (database ping)
//	GET  /api/insights  → tracker insights + recent events
//	POST /api/insights  → {action: "clear" | "log"}
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursekb/coursekb/internal/tracker"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to prevent Slowloris attacks.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout applies to keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Tracker    *tracker.Tracker // Required
	Pool       *pgxpool.Pool    // Optional: nil makes /ready report unavailable
	TrustProxy bool             // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst  int              // Rate limiter burst size per IP (0 = default 60)
}

// Server is the HTTP server for the observability API.
type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	trustProxy bool
	limiter    *rateLimiter
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Tracker == nil {
		return nil, errors.New("tracker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:        mux,
		logger:     logger,
		trustProxy: cfg.TrustProxy,
		limiter:    newRateLimiter(1.0, burst),
	}

	health := &healthHandler{pool: cfg.Pool, logger: logger}
	mux.HandleFunc("GET /health", health.liveness)
	mux.HandleFunc("GET /ready", health.readiness)

	insights := &insightsHandler{tracker: cfg.Tracker, logger: logger}
	mux.HandleFunc("GET /api/insights", insights.get)
	mux.HandleFunc("POST /api/insights", insights.act)

	return s, nil
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → rate limit → routes.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = rateLimitMiddleware(s.limiter, s.trustProxy, s.logger)(h)
	h = loggingMiddleware(s.logger)(h)
	h = recoveryMiddleware(s.logger)(h)
	return h
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
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
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
