package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the pipeline. A disabled Metrics
// is a no-op so callers never branch.
type Metrics struct {
	config MetricsConfig

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	stageDuration *prometheus.HistogramVec

	documentsEmitted prometheus.Counter
	diagnostics      *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),

		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Pipeline invocations started.",
		}, []string{"command"}),

		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Pipeline invocations completed, by outcome.",
		}, []string{"command", "outcome"}),

		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of one pipeline invocation.",
			Buckets:   buckets,
		}, []string{"outcome"}),

		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   buckets,
		}, []string{"stage"}),

		documentsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_emitted_total",
			Help:      "Documents that passed all validators.",
		}),

		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnostics produced, by rule.",
		}, []string{"rule"}),
	}

	m.registry.MustRegister(
		m.runsStarted, m.runsCompleted, m.runDuration,
		m.stageDuration, m.documentsEmitted, m.diagnostics,
	)
	return m, nil
}

// RunStarted records the start of an invocation.
func (m *Metrics) RunStarted(command string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(command).Inc()
}

// RunCompleted records the terminal outcome and duration of an invocation.
func (m *Metrics) RunCompleted(command, outcome string, seconds float64) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(command, outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(seconds)
}

// StageObserved records one stage's duration.
func (m *Metrics) StageObserved(stage string, seconds float64) {
	if m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// DocumentsEmitted records documents that reached the emitter.
func (m *Metrics) DocumentsEmitted(n int) {
	if m.documentsEmitted == nil {
		return
	}
	m.documentsEmitted.Add(float64(n))
}

// DiagnosticsProduced records diagnostics by rule.
func (m *Metrics) DiagnosticsProduced(rule string, n int) {
	if m.diagnostics == nil {
		return
	}
	m.diagnostics.WithLabelValues(rule).Add(float64(n))
}

// Handler returns an HTTP handler serving the metrics endpoint, or nil when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
