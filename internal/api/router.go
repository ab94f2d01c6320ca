package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicaonline/scheduling/internal/identity"
	"github.com/clinicaonline/scheduling/internal/scheduling"
)

type RouterConfig struct {
	Service  *scheduling.Service
	Verifier *identity.TokenVerifier
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   *zap.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints stay unauthenticated for probes.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Verifier))

		r.Get("/specialties", listSpecialtiesHandler(cfg.Service))
		r.Get("/specialists/{id}/slots", listSlotsHandler(cfg.Service))

		r.Post("/appointments", requestAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Post("/appointments/{id}/accept", transitionHandler(cfg.Service, scheduling.ActionAccept))
		r.Post("/appointments/{id}/reject", transitionHandler(cfg.Service, scheduling.ActionReject))
		r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Service, scheduling.ActionCancel))
		r.Post("/appointments/{id}/complete", transitionHandler(cfg.Service, scheduling.ActionComplete))

		r.Get("/availability", listAvailabilityHandler(cfg.Service))
		r.Post("/availability", createAvailabilityHandler(cfg.Service))
		r.Delete("/availability/{id}", deactivateAvailabilityHandler(cfg.Service))
	})

	return r
}
