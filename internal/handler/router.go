package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gosight/perfship/internal/metrics"
)

// NewRouter mounts the sink API.
func NewRouter(h *HTTPHandler) http.Handler {
	metrics.Init()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(CORSMiddleware)

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/log-groups/{group}/streams/{stream}/events", h.HandlePutLogEvents)

	return r
}
