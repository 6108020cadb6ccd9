package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-concierge/internal/http/middleware"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger          *logging.Logger
	TelnyxWebhook   http.HandlerFunc
	Admin           *handlers.AdminHandler
	ClinicHandler   *clinic.Handler
	Simulate        http.Handler
	SimulateLimiter *httpmiddleware.RateLimiter
	AdminAuthSecret string
	MetricsHandler  http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health)
		if cfg.TelnyxWebhook != nil {
			public.Post("/webhooks/telnyx/messages", cfg.TelnyxWebhook)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Simulate != nil {
			limiter := cfg.SimulateLimiter
			if limiter == nil {
				limiter = httpmiddleware.NewRateLimiter(2, 10)
			}
			public.With(httpmiddleware.RateLimit(limiter)).Post("/simulate", cfg.Simulate.ServeHTTP)
		}
	})

	if cfg.Admin != nil || cfg.ClinicHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.Admin != nil {
				cfg.Admin.Register(admin)
			}
			if cfg.ClinicHandler != nil {
				admin.Mount("/settings", cfg.ClinicHandler.Routes())
			}
		})
	}

	return r
}
