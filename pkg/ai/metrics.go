package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cybervantage",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of generative AI requests",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"provider", "model", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cybervantage",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed generative AI requests",
	}, []string{"provider", "model", "operation"})

	aiProviderFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cybervantage",
		Subsystem: "ai",
		Name:      "provider_fallbacks_total",
		Help:      "Number of requests served by a secondary provider after the primary failed",
	}, []string{"from", "to"})
)
