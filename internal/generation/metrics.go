package generation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songapi_generation_workflows_total",
			Help: "Generation workflows by terminal state",
		},
		[]string{"state"},
	)

	workflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "songapi_generation_duration_seconds",
			Help:    "Wall time of a generation workflow",
			Buckets: []float64{1, 5, 15, 30, 60, 90, 120, 180, 300},
		},
		[]string{"state"},
	)

	pollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "songapi_audio_poll_attempts",
			Help:    "Poll cycles spent per audio job",
			Buckets: prometheus.LinearBuckets(0, 10, 13),
		},
	)

	workflowsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "songapi_generation_in_flight",
			Help: "Generation workflows currently running",
		},
	)
)
