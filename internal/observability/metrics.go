package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector owns the runner's Prometheus metrics on its own
// registry. Labels name tools, stores and sources; never arguments or values.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// LLM metrics.
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensUsed      *prometheus.CounterVec

	// Tool execution metrics.
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Secret metrics. Labels carry the source only, never an identity or value.
	SecretResolutionsTotal *prometheus.CounterVec
	StoreReadsTotal        *prometheus.CounterVec
	StoreReadDuration      *prometheus.HistogramVec
	CacheFlushesTotal      prometheus.Counter

	// Security metrics.
	SecurityChecksTotal *prometheus.CounterVec
	SessionLimitTotal   prometheus.Counter

	// Telemetry server.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge
}

const metricsNamespace = "securetools"

var (
	llmBuckets   = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}
	storeBuckets = []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30}
)

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func histogramVec(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

// NewMetricsCollector registers every metric on a private registry.
func NewMetricsCollector() *MetricsCollector {
	m := &MetricsCollector{
		Registry: prometheus.NewRegistry(),

		LLMRequestsTotal:   counterVec("llm", "requests_total", "Model requests by outcome.", "provider", "model", "status"),
		LLMRequestDuration: histogramVec("llm", "request_duration_seconds", "Model request latency.", llmBuckets, "provider", "model"),
		LLMTokensUsed:      counterVec("llm", "tokens_used_total", "Tokens reported by the model server.", "provider", "model", "direction"),

		ToolExecutionsTotal:   counterVec("tool", "executions_total", "Tool calls executed by the broker.", "tool", "status"),
		ToolExecutionDuration: histogramVec("tool", "execution_duration_seconds", "Broker execution latency, secret resolution included.", prometheus.DefBuckets, "tool"),

		SecretResolutionsTotal: counterVec("secrets", "resolutions_total", "Secret resolutions by source and outcome.", "source", "outcome"),
		StoreReadsTotal:        counterVec("secrets", "store_reads_total", "Reads against the external secret store.", "store", "status"),
		StoreReadDuration:      histogramVec("secrets", "store_read_duration_seconds", "External secret store read latency.", storeBuckets, "store"),
		CacheFlushesTotal:      counter("secrets", "cache_flushes_total", "Secret cache flushes, manual or scheduled."),

		SecurityChecksTotal: counterVec("security", "checks_total", "Tool call checks (validation, rate limit) by result.", "check_type", "result"),
		SessionLimitTotal:   counter("security", "session_limit_exceeded_total", "Turns aborted by the tool call limit."),

		HTTPRequestsTotal:   counterVec("http", "requests_total", "Telemetry server requests.", "method", "path", "status_code"),
		HTTPRequestDuration: histogramVec("http", "request_duration_seconds", "Telemetry server request latency.", prometheus.DefBuckets, "method", "path"),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "in_flight_requests",
			Help: "Telemetry server requests being served.",
		}),
	}

	m.Registry.MustRegister(
		m.LLMRequestsTotal, m.LLMRequestDuration, m.LLMTokensUsed,
		m.ToolExecutionsTotal, m.ToolExecutionDuration,
		m.SecretResolutionsTotal, m.StoreReadsTotal, m.StoreReadDuration, m.CacheFlushesTotal,
		m.SecurityChecksTotal, m.SessionLimitTotal,
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPInFlight,
	)
	return m
}

// RecordSecretResolution counts a secret resolution. Nil-safe.
func (m *MetricsCollector) RecordSecretResolution(source, outcome string) {
	if m == nil {
		return
	}
	m.SecretResolutionsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordSecurityCheck counts a validation check. Nil-safe.
func (m *MetricsCollector) RecordSecurityCheck(checkType string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.SecurityChecksTotal.WithLabelValues(checkType, result).Inc()
}

// RecordSessionLimit counts a turn aborted by the tool call limit. Nil-safe.
func (m *MetricsCollector) RecordSessionLimit() {
	if m == nil {
		return
	}
	m.SessionLimitTotal.Inc()
}

// RecordCacheFlush counts a secret cache flush. Nil-safe.
func (m *MetricsCollector) RecordCacheFlush() {
	if m == nil {
		return
	}
	m.CacheFlushesTotal.Inc()
}
