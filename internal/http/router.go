package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/squadevents/rsvp-engine/internal/observability"
	"github.com/squadevents/rsvp-engine/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Route("/v1/events/{id}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ActorMiddleware)
			r.Use(RateLimitMiddleware(rl))
			r.Use(IdempotencyKeyMiddleware)
			r.Post("/reservations", h.Reserve)
			r.Delete("/reservations", h.Cancel)
			r.Get("/reservations/me", h.MyReservation)
			r.Post("/checkins", h.CheckIn)
		})
		r.Get("/count", h.Count)
		r.Get("/feed", h.Feed)
		r.Get("/verify", h.Verify)
		r.Post("/sync", h.Sync)
		r.Get("/attendance", h.Attendance)
	})

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
