// Package api serves online churn predictions over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/refset/telco-churn-scoring/internal/config"
	"github.com/refset/telco-churn-scoring/internal/metrics"
	"github.com/refset/telco-churn-scoring/internal/service"
)

// Handler is the HTTP adapter over the prediction service.
type Handler struct {
	service   *service.Service
	metrics   *metrics.Metrics
	publisher PredictionPublisher
	log       *zap.Logger
}

// NewHandler binds the service. publisher may be nil.
func NewHandler(svc *service.Service, m *metrics.Metrics, publisher PredictionPublisher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Handler{service: svc, metrics: m, publisher: publisher, log: log}
}

// NewRouter registers the routes and middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(h.log))
	r.Use(loggingMiddleware(h.log))

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Post("/predict", h.predict)
	r.Post("/admin/reload", h.reload)

	return r
}

// NewServer wraps the router in an http.Server configured from cfg.
func NewServer(cfg config.ServerConfig, h *Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(h),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
