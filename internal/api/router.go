// Package api provides the HTTP API for cardroute.
package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/api/handler"
	"github.com/cardroute/cardroute/internal/api/middleware"
	"github.com/cardroute/cardroute/internal/orchestration"
	"github.com/cardroute/cardroute/internal/psp"
	"github.com/cardroute/cardroute/internal/resilience"
	"github.com/cardroute/cardroute/internal/session"
	"github.com/cardroute/cardroute/internal/vault"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// ProviderMetrics records provider charge/capture calls (optional).
	ProviderMetrics *middleware.ProviderMetrics

	Engine   *orchestration.Engine
	Adapters psp.Factory
	Sessions *session.Service
	Vault    vault.Provider
	Breakers *resilience.Registry
	Health   *resilience.HealthTracker

	// Ready reports readiness of backing dependencies (nil means always
	// ready).
	Ready func(ctx context.Context) error
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "cardroute-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Breakers, cfg.Health, cfg.Ready)
	paymentsHandler := handler.NewPaymentsHandler(cfg.Engine, cfg.Adapters, cfg.Sessions, cfg.ProviderMetrics, cfg.Logger)
	tokensHandler := handler.NewTokensHandler(cfg.Vault)

	// Create session auth middleware for the confirm path
	sessionAuth := middleware.SessionAuth(cfg.Sessions)

	// Create rate limit middleware for different endpoint categories
	tokenizationRateLimit := middleware.RateLimitByIP(middleware.TokenizationRateLimit) // 10 req/min
	paymentRateLimit := middleware.RateLimitByIP(middleware.PaymentRateLimit)           // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)         // 100 req/min

	// Liveness and readiness probes (public, unversioned)
	r.Get("/healthz", opsHandler.HealthCheck)
	r.Get("/readyz", opsHandler.ReadinessCheck)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Payment execution - strict rate limiting
		r.Route("/payments", func(r chi.Router) {
			r.With(paymentRateLimit).Post("/", paymentsHandler.CreatePayment)

			// Confirm requires a session token scoped to the payment and
			// is rate limited per session.
			r.Route("/{paymentId}", func(r chi.Router) {
				r.Use(sessionAuth)
				r.Use(middleware.RateLimitBySession(middleware.PaymentRateLimit))
				r.Post("/confirm", paymentsHandler.ConfirmPayment)
			})
		})

		// Card tokenization - strictest rate limiting
		r.Route("/tokens", func(r chi.Router) {
			r.Use(tokenizationRateLimit)
			r.Post("/", tokensHandler.CreateToken)
			r.Get("/{tokenId}", tokensHandler.GetToken)
			r.Delete("/{tokenId}", tokensHandler.DeleteToken)
		})

		// Ops endpoints
		r.Route("/ops", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/providers", opsHandler.Providers)
		})
	})

	return r
}
