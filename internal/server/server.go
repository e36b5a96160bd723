package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/server/handler"
	"github.com/alanyoungcy/opinioncore/internal/server/middleware"
	"github.com/alanyoungcy/opinioncore/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	AdminAPIKey     string // if empty, admin authentication is disabled
	RateLimit       int    // requests per window per client IP; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Opinions *handler.OpinionHandler
	Pools    *handler.PoolHandler
	Funds    *handler.FundsHandler
	Admin    *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the opinion ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, rate limiting, logging) and attaches the
// WebSocket hub. Admin routes additionally require the configured API key.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and status (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Opinion endpoints.
	mux.HandleFunc("POST /api/opinions", handlers.Opinions.CreateOpinion)
	mux.HandleFunc("GET /api/opinions", handlers.Opinions.ListOpinions)
	mux.HandleFunc("GET /api/opinions/{id}", handlers.Opinions.GetOpinion)
	mux.HandleFunc("GET /api/opinions/{id}/history", handlers.Opinions.GetHistory)
	mux.HandleFunc("POST /api/opinions/{id}/answer", handlers.Opinions.SubmitAnswer)

	// Question resale endpoints.
	mux.HandleFunc("POST /api/opinions/{id}/question/listing", handlers.Opinions.ListQuestion)
	mux.HandleFunc("DELETE /api/opinions/{id}/question/listing", handlers.Opinions.CancelQuestionListing)
	mux.HandleFunc("POST /api/opinions/{id}/question/buy", handlers.Opinions.BuyQuestion)

	// Pool endpoints.
	mux.HandleFunc("POST /api/pools", handlers.Pools.CreatePool)
	mux.HandleFunc("GET /api/pools/{id}", handlers.Pools.GetPool)
	mux.HandleFunc("GET /api/pools/{id}/contributions", handlers.Pools.ListContributions)
	mux.HandleFunc("GET /api/opinions/{id}/pools", handlers.Pools.ListByOpinion)
	mux.HandleFunc("POST /api/pools/{id}/contribute", handlers.Pools.Contribute)
	mux.HandleFunc("POST /api/pools/{id}/withdraw", handlers.Pools.Withdraw)
	mux.HandleFunc("POST /api/pools/{id}/withdraw/early", handlers.Pools.WithdrawEarly)
	mux.HandleFunc("POST /api/pools/{id}/extend", handlers.Pools.Extend)
	mux.HandleFunc("POST /api/pools/{id}/expire", handlers.Pools.CheckExpiry)

	// Funds and fee endpoints.
	mux.HandleFunc("POST /api/funds/deposit", handlers.Funds.Deposit)
	mux.HandleFunc("POST /api/funds/withdraw", handlers.Funds.Withdraw)
	mux.HandleFunc("POST /api/fees/claim", handlers.Funds.ClaimFees)
	mux.HandleFunc("GET /api/accounts/{address}/balances", handlers.Funds.GetBalances)

	// Admin endpoints require the API key in addition to the engine's
	// capability checks.
	adminAuth := middleware.Auth(cfg.AdminAPIKey)
	mux.Handle("POST /api/admin/pause", adminAuth(http.HandlerFunc(handlers.Admin.Pause)))
	mux.Handle("POST /api/admin/unpause", adminAuth(http.HandlerFunc(handlers.Admin.Unpause)))
	mux.Handle("POST /api/admin/opinions/{id}/active", adminAuth(http.HandlerFunc(handlers.Admin.SetOpinionActive)))
	mux.Handle("GET /api/admin/params", adminAuth(http.HandlerFunc(handlers.Admin.GetParams)))
	mux.Handle("PUT /api/admin/params", adminAuth(http.HandlerFunc(handlers.Admin.SetParams)))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain (innermost first).
	var h http.Handler = mux

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply per-IP rate limiting when a limiter and limit are configured.
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	// Apply CORS middleware.
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
