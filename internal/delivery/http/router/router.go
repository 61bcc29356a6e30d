package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/delivery/http/handler"
	"github.com/user/prodsearch-service/internal/delivery/http/middleware"
	"github.com/user/prodsearch-service/internal/monitoring"
	"github.com/user/prodsearch-service/internal/ratelimit"
)

func New(h *handler.Handler, limiter *ratelimit.Limiter, m *monitoring.Metrics, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Metrics(m))

	r.Get("/api/health", h.HandleHealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(limiter)).Post("/research", h.HandleResearch)
		r.Get("/research/{id}", h.HandleGetRun)
	})

	return r
}
