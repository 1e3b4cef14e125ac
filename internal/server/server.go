// Package server exposes the read-only status API for a running trading
// process: health, engine status, open positions, recent trades, component
// metrics, and a WebSocket feed bridged from the signal bus. The only
// mutating endpoint is POST /api/stop, which asks the process to shut down.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/server/handler"
	"github.com/alanyoungcy/esportsarb/internal/server/middleware"
	"github.com/alanyoungcy/esportsarb/internal/server/ws"
)

// Per-client request budget for the REST surface. A dashboard polling
// status once per second stays well inside the window.
const (
	rateLimit  = 30
	rateWindow = time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Positions *handler.PositionHandler
	Trades    *handler.TradeHandler
	Metrics   *handler.MetricsHandler
	Stop      *handler.StopHandler
}

// Server is the HTTP + WebSocket API server for the trading process.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (auth, rate limiting, logging, CORS) wired around it.
// The health endpoint bypasses authentication so load balancers can probe
// without credentials. hub and limiter are optional; nil disables the
// WebSocket endpoint and rate limiting respectively.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("GET /api/metrics", handlers.Metrics.GetMetrics)
	mux.HandleFunc("POST /api/stop", handlers.Stop.Stop)

	if hub != nil {
		mux.HandleFunc("GET /api/ws", hub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey, "/api/health")(h)

	if limiter != nil {
		h = middleware.RateLimit(limiter, rateLimit, rateWindow)(h)
	}

	h = middleware.Logging(logger)(h)

	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler. Useful for tests and for
// mounting the API under an existing server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
