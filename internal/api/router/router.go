package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aoemotors/driveflow/internal/bookings"
	httpmiddleware "github.com/aoemotors/driveflow/internal/http/middleware"
	"github.com/aoemotors/driveflow/internal/messaging"
	"github.com/aoemotors/driveflow/internal/tracking"
	"github.com/aoemotors/driveflow/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	Webhook         *messaging.Handler
	Kickoff         *messaging.Kickoff
	Tracking        *tracking.Handler
	Bookings        *bookings.Handler
	AdminAuthSecret string
	MetricsHandler  http.Handler

	// Limiter for the public intake endpoint, owned and stopped by the
	// caller. Nil disables rate limiting.
	IntakeLimiter *httpmiddleware.RateLimiter
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		r.Route("/webhook/whatsapp", func(wa chi.Router) {
			wa.Get("/", cfg.Webhook.HandleVerification)
			wa.Post("/", cfg.Webhook.HandleInbound)
		})
	}

	if cfg.Tracking != nil {
		r.Get("/r/{token}", cfg.Tracking.Redirect)
	}

	if cfg.Kickoff != nil {
		r.Post("/sessions/kickoff", cfg.Kickoff.ServeKickoff)
	}

	if cfg.Bookings != nil {
		r.Group(func(intake chi.Router) {
			if cfg.IntakeLimiter != nil {
				intake.Use(cfg.IntakeLimiter.Middleware())
			}
			intake.Post("/webhook/testdrive", cfg.Bookings.Intake)
		})

		r.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/bookings/update", cfg.Bookings.Update)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
