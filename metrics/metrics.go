// Package metrics - Prometheus collectors for the detection service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detect_requests_total",
		Help: "Total number of detection requests, by route and response status",
	}, []string{"route", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "detect_request_duration_seconds",
		Help:    "Time from request start until the response body is fully written",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"route"})

	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detect_frames_processed_total",
		Help: "Total number of video frames annotated",
	})

	BoxesDrawnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detect_boxes_drawn_total",
		Help: "Total number of detection boxes drawn, by class",
	}, []string{"class"})

	SpoolsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "detect_spools_active",
		Help: "Number of temporary spool files currently on disk",
	})
)

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
