package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinichq/clinic-booking/internal/booking"
	"github.com/clinichq/clinic-booking/internal/metrics"
	"github.com/clinichq/clinic-booking/internal/session"
)

type RouterConfig struct {
	Service   *booking.Service
	Sessions  *session.Store
	Metrics   *metrics.BookingMetrics
	Logger    *zap.Logger
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
	RateLimit int // requests per second per IP, 0 disables
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(cfg.Logger, cfg.Metrics))

	// Health and metrics stay outside the rate limit
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	h := NewHandlers(cfg.Service, cfg.Sessions, cfg.Metrics, cfg.Logger)

	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, time.Second))
		}

		r.Get("/doctors", h.ListDoctors)
		r.Post("/doctors", h.AddDoctor)
		r.Get("/doctors/{name}/availability", h.Availability)
		r.Post("/doctors/{id}/reports", h.DoctorReport)

		r.Post("/appointments", h.BookAppointment)
		r.Get("/appointments", h.ListAppointments)
		r.Post("/appointments/{id}/cancel", h.CancelAppointment)

		r.Get("/chat/sessions/{userID}", h.GetSession)
		r.Put("/chat/sessions/{userID}", h.PutSession)
		r.Delete("/chat/sessions/{userID}", h.DeleteSession)
	})

	return r
}
