package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maclarenscott/ticket-nova/internal/observability"
	"github.com/maclarenscott/ticket-nova/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(JWTMiddleware(h.cfg.JWTSecret))
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyMiddleware)

	r.Post("/v1/reservations", h.CreateReservation)
	r.Post("/v1/reservations/release", h.ReleaseTickets)
	r.Post("/v1/tickets/{id}/checkin", h.CheckInTicket)
	r.Get("/v1/orders/{id}", h.GetOrder)
	r.Get("/v1/performances/{id}", h.GetPerformance)
	r.Post("/v1/performances", h.CreatePerformance)
	r.Get("/v1/events", h.ListEvents)
	r.Get("/v1/events/{id}", h.GetEvent)
	r.Post("/v1/events", h.CreateEvent)
	r.Post("/v1/payments/callback", h.PaymentCallback)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
