// Package router assembles the HTTP surface: public booking and
// webhook endpoints plus JWT-protected staff routes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/availability"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/booking"
	httpmiddleware "github.com/ohohohreohpul/onbuuk2025-sub001/internal/http/middleware"
	"github.com/ohohohreohpul/onbuuk2025-sub001/internal/payments"
	"github.com/ohohohreohpul/onbuuk2025-sub001/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	AvailabilityHandler *availability.Handler
	BookingHandler      *booking.Handler
	PaymentsHandler     *payments.Handler
	StripeWebhook       *payments.WebhookHandler
	PayPalWebhook       *payments.WebhookHandler

	StaffAuthSecret string
	MetricsHandler  http.Handler
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(httpmiddleware.Tenant)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: customer flows and provider webhooks.
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		if cfg.AvailabilityHandler != nil {
			public.Get("/availability", cfg.AvailabilityHandler.GetSlots)
			public.Get("/availability/all", cfg.AvailabilityHandler.GetSlotsAllSpecialists)
		}
		if cfg.BookingHandler != nil {
			public.Post("/bookings", cfg.BookingHandler.Create)
			public.Post("/bookings/{bookingID}/cancel", cfg.BookingHandler.Cancel)
		}
		if cfg.PaymentsHandler != nil {
			public.Post("/payments/checkout", cfg.PaymentsHandler.CreateCheckout)
			public.Post("/payments/paypal/capture", cfg.PaymentsHandler.CapturePayPalOrder)
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
		if cfg.PayPalWebhook != nil {
			public.Post("/webhooks/paypal", cfg.PayPalWebhook.Handle)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Staff routes, JWT-protected.
	if cfg.StaffAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))
			if cfg.AvailabilityHandler != nil {
				admin.Put("/working-hours", cfg.AvailabilityHandler.UpsertWorkingHours)
				admin.Post("/time-blocks", cfg.AvailabilityHandler.CreateTimeBlock)
				admin.Delete("/time-blocks/{blockID}", cfg.AvailabilityHandler.DeleteTimeBlock)
			}
			if cfg.BookingHandler != nil {
				admin.Post("/bookings/{bookingID}/complete", cfg.BookingHandler.Complete)
				admin.Post("/bookings/{bookingID}/no-show", cfg.BookingHandler.NoShow)
				admin.Post("/bookings/{bookingID}/cancel", cfg.BookingHandler.Cancel)
			}
		})
	}

	return r
}
