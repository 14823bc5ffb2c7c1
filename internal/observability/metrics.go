package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	contentSourceTotal    *prometheus.CounterVec
	simulationEventsTotal *prometheus.CounterVec
	simulationResetsTotal prometheus.Counter
	threatScansTotal      *prometheus.CounterVec
	aiLimiterRejections   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybervantage_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cybervantage_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybervantage_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		contentSourceTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybervantage_content_source_total",
			Help: "Generated emails and grades by the source that produced them.",
		}, []string{"kind", "source"})

		simulationEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybervantage_simulation_events_total",
			Help: "Simulation lifecycle events.",
		}, []string{"type"})

		simulationResetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cybervantage_simulation_emergency_resets_total",
			Help: "Simulations reset after their stored state could not be used.",
		})

		threatScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybervantage_threat_scans_total",
			Help: "Threat-intelligence lookups by kind and outcome.",
		}, []string{"kind", "outcome"})

		aiLimiterRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cybervantage_ai_limiter_rejections_total",
			Help: "AI calls skipped because the request limiter was exhausted.",
		}, []string{"function"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			contentSourceTotal,
			simulationEventsTotal,
			simulationResetsTotal,
			threatScansTotal,
			aiLimiterRejections,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ContentSource counts generated emails ("email") and grades ("grade") per source.
func ContentSource() *prometheus.CounterVec {
	RegisterMetrics()
	return contentSourceTotal
}

// SimulationEvents counts lifecycle events by type.
func SimulationEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return simulationEventsTotal
}

// SimulationResets counts emergency resets.
func SimulationResets() prometheus.Counter {
	RegisterMetrics()
	return simulationResetsTotal
}

// ThreatScans counts threat lookups.
func ThreatScans() *prometheus.CounterVec {
	RegisterMetrics()
	return threatScansTotal
}

// AILimiterRejections counts AI calls denied by the request limiter.
func AILimiterRejections() *prometheus.CounterVec {
	RegisterMetrics()
	return aiLimiterRejections
}
