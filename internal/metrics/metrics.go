// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for AnalysesTotal.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phase_energy_analyses_total",
			Help: "Flight analyses by outcome",
		},
		[]string{"outcome"},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "phase_energy_analysis_duration_seconds",
			Help:    "Wall time to decode and analyse one flight log",
			Buckets: prometheus.DefBuckets,
		},
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "phase_energy_upload_bytes",
			Help:    "Size of accepted flight log uploads",
			Buckets: prometheus.ExponentialBuckets(64<<10, 4, 8), // 64 KiB .. 1 GiB
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phase_energy_http_requests_total",
			Help: "HTTP requests by method, route pattern and status",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordAnalysis counts one analysis and, when it ran, its duration.
func RecordAnalysis(outcome string, elapsed time.Duration) {
	AnalysesTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeRejected {
		AnalysisDuration.Observe(elapsed.Seconds())
	}
}

// RecordRequest counts one served request.
func RecordRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
