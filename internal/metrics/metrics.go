package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Queue and worker pool metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelstream_jobs_total",
			Help: "Total number of transcode jobs by terminal outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "canceled"
	)

	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelstream_jobs_active",
			Help: "Number of jobs currently running in worker slots",
		},
	)

	JobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelstream_jobs_queued",
			Help: "Number of jobs waiting in the queue",
		},
	)

	EncodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelstream_encode_duration_seconds",
			Help:    "Wall-clock duration of completed encodes",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		},
	)

	EncodeSpeed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelstream_encode_speed_multiplier",
			Help: "Most recent encode speed multiplier across active jobs",
		},
	)
)

// Scanner metrics
var (
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelstream_scan_runs_total",
			Help: "Total number of library scans by outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "canceled"
	)

	ScanJobsAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelstream_scan_jobs_added_total",
			Help: "Total number of jobs added by library scans",
		},
	)
)

// Buffer controller metrics
var (
	BufferSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelstream_buffer_sessions",
			Help: "Number of live streaming sessions in the buffer registry",
		},
	)

	BufferStrategyEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelstream_buffer_strategy_evaluations_total",
			Help: "Buffer strategy evaluations by selected tier",
		},
		[]string{"tier"},
	)

	BufferCriticalTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelstream_buffer_critical_total",
			Help: "Times a session's buffer dropped below its strategy minimum",
		},
	)
)

// Reconciler metrics
var (
	ReconcileRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelstream_reconcile_runs_total",
			Help: "Total number of catalog reconciliation passes",
		},
	)

	ReconcileHealedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelstream_reconcile_healed_total",
			Help: "Catalog ready flags healed by the reconciler",
		},
		[]string{"direction"}, // "ready", "not_ready"
	)
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
