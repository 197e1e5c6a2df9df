package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/velora-spa/booking-platform/internal/http/handlers"
	httpmiddleware "github.com/velora-spa/booking-platform/internal/http/middleware"
	"github.com/velora-spa/booking-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	HealthHandler  *handlers.HealthHandler
	BookingHandler *handlers.BookingHandler
	WebhookHandler *handlers.AltegioWebhookHandler
	AdminHandler   *handlers.AdminHandler
	MetricsHandler http.Handler

	AdminToken         string
	CORSAllowedOrigins []string

	// Webhook rate limiting (requests per second per client IP).
	WebhookRateLimit float64
	WebhookRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (booking flow, webhooks, health checks)
	r.Group(func(public chi.Router) {
		if cfg.HealthHandler != nil {
			public.Get("/health", cfg.HealthHandler.Check)
		}
		if cfg.BookingHandler != nil {
			public.Route("/booking", func(r chi.Router) {
				r.Get("/time-slots/{serviceID}", cfg.BookingHandler.TimeSlots)
				r.Get("/available-days/{serviceID}", cfg.BookingHandler.AvailableDays)
				r.Post("/create", cfg.BookingHandler.Create)
			})
			public.Post("/bookings/{bookingID}/cancel", cfg.BookingHandler.Cancel)
		}
		if cfg.WebhookHandler != nil {
			rate, burst := cfg.WebhookRateLimit, cfg.WebhookRateBurst
			if rate <= 0 {
				rate = 10
			}
			if burst <= 0 {
				burst = 20
			}
			public.With(httpmiddleware.RateLimit(rate, burst)).
				Post("/webhooks/altegio", cfg.WebhookHandler.Handle)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Admin routes (protected by the shared admin token)
	if cfg.AdminHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminToken(cfg.AdminToken))
			admin.Post("/sync", cfg.AdminHandler.Sync)
			admin.Post("/discover-schedules", cfg.AdminHandler.DiscoverSchedules)
		})
	}

	return r
}
