package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the iris gateway.
type Metrics struct {
	RequestTotal           *prometheus.CounterVec
	RequestDurationMs      *prometheus.HistogramVec
	StageDurationMs        *prometheus.HistogramVec
	ImageTotal             *prometheus.CounterVec
	CacheEntries           prometheus.Gauge
	GenerationAttemptTotal *prometheus.CounterVec
	ProviderSwitchTotal    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_request_total",
			Help: "Total requests processed, by pipeline outcome.",
		}, []string{"model", "provider", "outcome"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iris_request_duration_ms",
			Help:    "Total request duration in milliseconds (including upstream latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model", "provider"}),

		StageDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iris_pipeline_stage_duration_ms",
			Help:    "Per-stage pipeline duration in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000, 5000, 30000},
		}, []string{"stage"}),

		ImageTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_image_total",
			Help: "Images handled, by where the description came from.",
		}, []string{"source"}), // cache | generated | shared | placeholder

		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "iris_description_cache_entries",
			Help: "Current number of cached image descriptions.",
		}),

		GenerationAttemptTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "iris_generation_attempt_total",
			Help: "Vision model invocation attempts, by model and outcome.",
		}, []string{"model", "outcome"}),

		ProviderSwitchTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "iris_provider_switch_total",
			Help: "Detected mid-session provider family switches.",
		}),
	}
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(model, providerFamily, outcome string, durationMs float64) {
	m.RequestTotal.WithLabelValues(model, providerFamily, outcome).Inc()
	m.RequestDurationMs.WithLabelValues(model, providerFamily).Observe(durationMs)
}

// RecordStage records one pipeline stage duration.
func (m *Metrics) RecordStage(stage string, durationMs float64) {
	m.StageDurationMs.WithLabelValues(stage).Observe(durationMs)
}

// RecordImage records where one image's description came from.
func (m *Metrics) RecordImage(source string) {
	m.ImageTotal.WithLabelValues(source).Inc()
}

// RecordGenerationAttempt records one vision invocation attempt.
func (m *Metrics) RecordGenerationAttempt(model, outcome string) {
	m.GenerationAttemptTotal.WithLabelValues(model, outcome).Inc()
}

// RecordProviderSwitch records a mid-session provider family change.
func (m *Metrics) RecordProviderSwitch() {
	m.ProviderSwitchTotal.Inc()
}

// SetCacheEntries publishes the current description cache size.
func (m *Metrics) SetCacheEntries(n int) {
	m.CacheEntries.Set(float64(n))
}
