package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/showtime-reservations/internal/idempotency"
	"github.com/robertarktes/showtime-reservations/internal/observability"
	"github.com/robertarktes/showtime-reservations/internal/ratelimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter, limits RateLimits, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(IdempotencyMiddleware(idemp))
		r.Post("/v1/payments/callback", h.PaymentCallback)
	})

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)
		r.Use(RateLimitMiddleware(rl, limits))
		r.Use(IdempotencyMiddleware(idemp))

		r.Get("/v1/shows/{id}/seats", h.ShowSeats)

		r.Post("/v1/reservations", h.CreateReservation)
		r.Get("/v1/reservations/{id}", h.GetReservation)
		r.Post("/v1/reservations/{id}/convert", h.ConvertReservation)
		r.Delete("/v1/reservations/{id}", h.CancelReservation)

		r.Post("/v1/bookings", h.CreateBooking)
		r.Get("/v1/bookings/{id}", h.GetBooking)
		r.Put("/v1/bookings/{id}/cancel", h.CancelBooking)

		r.Post("/v1/admin/reservations/sweep", h.Sweep)
	})

	return r
}
