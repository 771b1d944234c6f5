// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	PipelineOutcomes *prometheus.CounterVec
	PipelineErrors   *prometheus.CounterVec
	URLResolutions   *prometheus.CounterVec

	prefixes []string
}

// New creates a Metrics instance with a custom registry and all collectors
// registered. prefixes are the route mounts used as bounded path labels, in
// addition to the built-in endpoints.
func New(prefixes ...string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_proxy_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_proxy_upstream_responses_total",
			Help: "Total upstream responses by method and status code.",
		}, []string{"method", "status_code"}),

		PipelineOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_proxy_pipeline_outcomes_total",
			Help: "Terminal pipeline phases (done, short_circuited, failed).",
		}, []string{"outcome"}),

		PipelineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_proxy_pipeline_errors_total",
			Help: "Pipeline failures by error kind.",
		}, []string{"kind"}),

		URLResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_proxy_url_resolutions_total",
			Help: "Target URL resolutions by source (memoized, computed).",
		}, []string{"source"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.PipelineOutcomes,
		m.PipelineErrors,
		m.URLResolutions,
	)

	m.prefixes = append([]string{"/healthz", "/proxy/status", "/metrics"}, prefixes...)
	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// NormalizePath returns a bounded path label: the longest known prefix that
// matches, or "other".
func (m *Metrics) NormalizePath(path string) string {
	best := ""
	for _, prefix := range m.prefixes {
		if prefix == "/" || path == prefix || strings.HasPrefix(path, prefix+"/") {
			if len(prefix) > len(best) {
				best = prefix
			}
		}
	}
	if best == "" {
		return "other"
	}
	return best
}
