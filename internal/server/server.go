// Package server exposes the swap engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/server/handler"
	"github.com/alanyoungcy/swapbot/internal/server/middleware"
	"github.com/alanyoungcy/swapbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Per-IP request limit; zero disables it.
	RateLimit  int
	RateWindow time.Duration

	// WriteTimeout must outlast a swap request, which waits for receipts.
	WriteTimeout time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Swaps       *handler.SwapHandler
	LimitOrders *handler.LimitOrderHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// wrapped in the middleware chain. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, wsHub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	if srv.WriteTimeout <= 0 {
		srv.WriteTimeout = 5 * time.Minute
	}

	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	mux.HandleFunc("POST /api/intents", handlers.Swaps.HandleIntent)
	mux.HandleFunc("POST /api/swaps", handlers.Swaps.Swap)
	mux.HandleFunc("GET /api/requests/{id}/attempts", handlers.Swaps.ListAttempts)
	mux.HandleFunc("GET /api/requests/{id}/receipt", handlers.Swaps.GetReceipt)

	mux.HandleFunc("POST /api/limit-orders", handlers.LimitOrders.Place)
	mux.HandleFunc("GET /api/limit-orders", handlers.LimitOrders.List)
	mux.HandleFunc("GET /api/limit-orders/{id}", handlers.LimitOrders.Get)
	mux.HandleFunc("DELETE /api/limit-orders/{id}", handlers.LimitOrders.Cancel)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
