package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/venuecompare/internal/domain"
	"github.com/alanyoungcy/venuecompare/internal/server/handler"
	"github.com/alanyoungcy/venuecompare/internal/server/middleware"
	"github.com/alanyoungcy/venuecompare/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimitPerSec int    // if zero, rate limiting is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Session    *handler.SessionHandler
	State      *handler.StateHandler
	Comparison *handler.ComparisonHandler
}

// Server is the HTTP + WebSocket API over one comparison session.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (request IDs, logging, CORS, auth, rate limiting)
// and attaches the WebSocket hub when one is given.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Session status and control.
	mux.HandleFunc("GET /api/status", handlers.Session.GetStatus)
	mux.HandleFunc("POST /api/subscribe", handlers.Session.Subscribe)
	mux.HandleFunc("PUT /api/asset", handlers.Session.SetAsset)

	// Venue state.
	mux.HandleFunc("GET /api/assets", handlers.State.ListAssets)
	mux.HandleFunc("GET /api/markets", handlers.State.ListMarkets)
	mux.HandleFunc("GET /api/orderbook/{venue}/{market}", handlers.State.GetOrderBook)
	mux.HandleFunc("GET /api/liquidity/{venue}/{market}", handlers.State.GetLiquidity)
	mux.HandleFunc("GET /api/prices/{venue}/{market}", handlers.State.GetPrices)

	// Comparison analytics.
	mux.HandleFunc("GET /api/comparison", handlers.Comparison.GetComparison)
	mux.HandleFunc("GET /api/history", handlers.Comparison.GetHistory)
	mux.HandleFunc("GET /api/winrates", handlers.Comparison.GetWinRates)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimitPerSec, time.Second)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.RequestID()(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger.With(slog.String("component", "http")),
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
