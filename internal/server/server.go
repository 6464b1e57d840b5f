package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/handler"
	"github.com/tallyhq/tally/internal/ratelimit"
	"github.com/tallyhq/tally/internal/server/middleware"
	"github.com/tallyhq/tally/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host              string
	Port              int
	ShutdownTimeout   time.Duration
	CORSOrigins       []string
	MaxBodySize       int64 // bytes
	ExchangeRateLimit int   // per IP per minute; applies to login too
	IngestWindow      time.Duration
	WebhookSecret     string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		ShutdownTimeout:   30 * time.Second,
		CORSOrigins:       []string{"*"},
		MaxBodySize:       1 << 20, // 1MB
		ExchangeRateLimit: 30,
		IngestWindow:      ratelimit.DefaultWindow,
	}
}

// Services bundles the domain services the HTTP layer dispatches to.
type Services struct {
	Auth     *service.AuthService
	Projects *service.ProjectService
	Keys     *service.KeyManager
	Gate     *service.Gate
	Events   *service.EventService
}

// Server is the top-level HTTP server for Tally. It owns the Chi router and
// the store used for readiness checks.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *config.Store
	svc        Services
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, store *config.Store, svc Services, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		svc:    svc,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	sessionHandler := handler.NewSessionHandler(s.svc.Auth)
	exchangeHandler := handler.NewExchangeHandler(s.svc.Keys)
	trackHandler := handler.NewTrackHandler(s.svc.Gate, s.cfg.IngestWindow)
	webhookHandler := handler.NewWebhookHandler(s.cfg.WebhookSecret, s.logger)
	keyHandler := handler.NewKeyHandler(s.svc.Keys)
	eventHandler := handler.NewEventHandler(s.svc.Events)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		// Credential endpoints are limited per IP to slow down guessing.
		r.With(middleware.RateLimit(s.cfg.ExchangeRateLimit)).Post("/session", sessionHandler.Login)
		r.With(middleware.RateLimit(s.cfg.ExchangeRateLimit)).Post("/token-exchange", exchangeHandler.Exchange)

		// Ingestion authorizes itself with access tokens.
		r.Post("/track", trackHandler.Track)
		r.Post("/webhook", webhookHandler.Receive)

		// Owner APIs
		r.Route("/projects/{projectId}", func(r chi.Router) {
			r.Use(middleware.Authenticate(s.svc.Auth))
			r.Use(middleware.RequireProjectOwner(s.svc.Projects))

			r.Post("/api-keys", keyHandler.Create)
			r.Get("/api-keys", keyHandler.List)
			r.Put("/api-keys/{apiKeyId}/rotate", keyHandler.Rotate)
			r.Delete("/api-keys/{apiKeyId}/revoke", keyHandler.Revoke)

			r.Get("/events", eventHandler.List)
			r.Get("/events/counts", eventHandler.Counts)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the store answers a
// ping, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		checks["store"] = "unavailable"
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests and pending key usage updates.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if s.svc.Gate != nil {
		s.svc.Gate.Wait()
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
