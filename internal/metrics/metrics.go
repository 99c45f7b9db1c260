package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ProfileResolutions counts resolver outcomes: found, not_found, error,
	// timeout, cancelled.
	ProfileResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_profile_resolutions_total",
			Help: "Profile resolutions by outcome",
		},
		[]string{"outcome"},
	)

	GuardDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_guard_decisions_total",
			Help: "Route guard decisions by kind",
		},
		[]string{"decision"},
	)

	SessionStores = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_session_stores",
			Help: "Live per-browser session stores",
		},
	)

	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_worker_tasks_total",
			Help: "Worker stream tasks by type and result",
		},
		[]string{"type", "result"},
	)
)
