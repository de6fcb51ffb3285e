// Package api provides the HTTP API for subjectdesk.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/subjectdesk/subjectdesk/internal/api/handler"
	"github.com/subjectdesk/subjectdesk/internal/api/middleware"
	"github.com/subjectdesk/subjectdesk/internal/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Metrics   *middleware.Metrics

	// Requests serves submission and confirmation (required).
	Requests handler.RequestService

	// TokenTTL is reported as the confirmation deadline.
	TokenTTL time.Duration

	// Clock stamps the reported deadline. Default: clock.WallClock.
	Clock clock.Clock

	// Tokens validates bearer tokens. If nil, every caller is anonymous.
	Tokens middleware.TokenValidator

	// Stores are checked by /v1/ops/ready and /v1/ops/status.
	Stores map[string]handler.Pinger

	// Dependencies reports upstream health on /v1/ops/status.
	Dependencies *resilience.Registry

	// RequireTLS rejects plain HTTP requests forwarded by a proxy.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.OptionalAuth(cfg.Tokens))

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:      cfg.Version,
		BuildTime:    cfg.BuildTime,
		Stores:       cfg.Stores,
		Dependencies: cfg.Dependencies,
	})
	requestsHandler := handler.NewRequestsHandler(cfg.Requests, cfg.TokenTTL, cfg.Clock, cfg.Logger)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(middleware.RequireAccount, middleware.RateLimitByAccount(middleware.StandardRateLimit)).
				Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/requests", func(r chi.Router) {
			r.With(middleware.RequireJSON, middleware.RateLimitByAccount(middleware.SubmitRateLimit)).
				Post("/", requestsHandler.Submit)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitByIP(middleware.ConfirmRateLimit))
				r.Get("/confirm", requestsHandler.ConfirmLink)
				r.With(middleware.RequireJSON).Post("/confirmations", requestsHandler.Confirm)
			})
		})
	})

	return r
}
