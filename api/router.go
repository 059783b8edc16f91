package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nvr-ai/go-detect/metrics"
	"go.uber.org/zap"
)

// NewRouter mounts the service routes.
//
//	POST /detect/image/{classes}?conf=0.25
//	POST /detect/video/{classes}?conf=0.25
//	GET  /classes
//	GET  /healthz
//	GET  /metrics
func NewRouter(h *Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(h.active.track)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(chimiddleware.Recoverer)

	r.Post("/detect/image/{classes}", h.DetectImage)
	r.Post("/detect/video/{classes}", h.DetectVideo)
	r.Get("/classes", h.Classes)
	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
