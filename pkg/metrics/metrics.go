// Package metrics provides Prometheus metrics for the registry gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chmcp"

// Collector holds the gateway metrics on a private registry, so several
// collectors can coexist in one process (tests, multiple credentials).
// A nil *Collector is valid and records nothing.
type Collector struct {
	Registry *prometheus.Registry

	// Gateway calls by operation and outcome (hit, ok or an error kind).
	Calls *prometheus.CounterVec
	// Upstream round-trip latency by operation.
	UpstreamDuration *prometheus.HistogramVec
	// Admission decisions (admitted, rejected).
	Admissions *prometheus.CounterVec
	// Tool invocations by tool name and result.
	ToolCalls *prometheus.CounterVec
}

// New creates a collector with all metrics registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		Registry: reg,
		Calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_calls_total",
				Help:      "Total gateway operation calls by outcome",
			},
			[]string{"operation", "outcome"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream registry API round-trip duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		Admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Rate budget admission decisions",
			},
			[]string{"result"},
		),
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "MCP tool invocations by tool and result",
			},
			[]string{"tool", "result"},
		),
	}
}

// TrackGateway registers gauges read on scrape: available budget tokens and
// cache size.
func (c *Collector) TrackGateway(tokens func() float64, cacheEntries func() float64) {
	if c == nil {
		return
	}
	factory := promauto.With(c.Registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "budget_tokens_available",
		Help:      "Tokens currently available in the rate budget",
	}, tokens)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Entries currently held in the response cache",
	}, cacheEntries)
}

// ObserveCall records one gateway call.
func (c *Collector) ObserveCall(operation, outcome string) {
	if c == nil {
		return
	}
	c.Calls.WithLabelValues(operation, outcome).Inc()
}

// ObserveUpstream records the duration of one upstream round trip.
func (c *Collector) ObserveUpstream(operation string, d time.Duration) {
	if c == nil {
		return
	}
	c.UpstreamDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveAdmission records an admission decision.
func (c *Collector) ObserveAdmission(admitted bool) {
	if c == nil {
		return
	}
	result := "admitted"
	if !admitted {
		result = "rejected"
	}
	c.Admissions.WithLabelValues(result).Inc()
}

// ObserveTool records one tool invocation.
func (c *Collector) ObserveTool(tool string, isError bool) {
	if c == nil {
		return
	}
	result := "ok"
	if isError {
		result = "error"
	}
	c.ToolCalls.WithLabelValues(tool, result).Inc()
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}
