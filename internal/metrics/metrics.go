package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MarkingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_markings_total",
			Help: "Total number of recorded attendance markings",
		},
		[]string{"checkpoint", "method"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	LiveObservers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_observers",
			Help: "Number of connected dashboard observers",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_events_dropped_total",
			Help: "Events dropped because an observer buffer was full",
		},
	)
)
