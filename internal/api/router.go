package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"standings/pkg/logger"
	"standings/pkg/ratelimit"
)

// RouterConfig holds the cross-cutting settings of the router
type RouterConfig struct {
	AllowedOrigins []string
	Limiter        ratelimit.Limiter
	RequestTimeout time.Duration
}

// NewRouter mounts the API under /api
func NewRouter(h *Handler, cfg RouterConfig, l *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(l.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		if cfg.Limiter != nil {
			r.Use(ratelimit.Middleware(cfg.Limiter, l.Named("ratelimit")))
		}

		r.Get("/events/{eventID}", h.getEvent)
		r.Get("/groups/{groupID}/schedule", h.getSchedule)
		r.Get("/groups/{groupID}/standings", h.getGroupStandings)
		r.Get("/standings", h.getOverall)
		r.Post("/matches/{matchID}/results", h.postResult)
	})

	return r
}
