package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricNamespace = "token_manager"

const (
	labelPath   = "path"
	labelMethod = "method"
	labelCode   = "code"
	labelStatus = "status"
	labelResult = "result"
)

// Metrics owns the service collectors and the registry they are exposed through.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	probes         *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
}

// NewMetrics builds a registry carrying the service collectors plus the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of HTTP requests by route, method and status code.",
		}, []string{labelPath, labelMethod, labelCode}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{labelPath, labelMethod}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Count of error responses by route, method and error code.",
		}, []string{labelPath, labelMethod, labelCode}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: "validation",
			Name:      "probes_total",
			Help:      "Count of token status probes by classified status.",
		}, []string{labelStatus}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: "validation",
			Name:      "portal_refreshes_total",
			Help:      "Count of billing portal refreshes by snapshot status.",
		}, []string{labelResult}),
	}

	m.Registry.MustRegister(
		m.requests,
		m.requestLatency,
		m.errors,
		m.probes,
		m.refreshes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordProbe counts a probe outcome.
func (m *Metrics) RecordProbe(status string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(status).Inc()
}

// RecordPortalRefresh counts a portal snapshot by its status ("active" or "error").
func (m *Metrics) RecordPortalRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}
