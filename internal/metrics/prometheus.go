package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promMirror republishes collector updates on a private registry so a run
// can be scraped while it is in progress.
type promMirror struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	checks     *prometheus.CounterVec
	iterations *prometheus.CounterVec
	counters   *prometheus.CounterVec
}

func newPromMirror() *promMirror {
	reg := prometheus.NewRegistry()
	m := &promMirror{
		registry: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopflow_http_requests_total",
				Help: "HTTP requests issued by virtual users",
			},
			[]string{"step", "status", "failed"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shopflow_http_request_duration_seconds",
				Help:    "HTTP request latency by flow step",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopflow_checks_total",
				Help: "Check outcomes by name",
			},
			[]string{"check", "result"},
		),
		iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopflow_iterations_total",
				Help: "Finished flow iterations",
			},
			[]string{"result"},
		),
		counters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopflow_flow_events_total",
				Help: "Named business counters (retries, wait timeouts, completed transactions)",
			},
			[]string{"name"},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.checks, m.iterations, m.counters)
	return m
}

func (m *promMirror) observeRequest(step, code string, latency time.Duration, failed bool) {
	result := "false"
	if failed {
		result = "true"
	}
	m.requests.WithLabelValues(step, code, result).Inc()
	m.duration.WithLabelValues(step).Observe(latency.Seconds())
}

func (m *promMirror) observeCheck(name string, ok bool) {
	result := "pass"
	if !ok {
		result = "fail"
	}
	m.checks.WithLabelValues(name, result).Inc()
}

func (m *promMirror) observeIteration(aborted bool) {
	result := "completed"
	if aborted {
		result = "aborted"
	}
	m.iterations.WithLabelValues(result).Inc()
}

func (m *promMirror) observeCounter(name string, delta int64) {
	m.counters.WithLabelValues(name).Add(float64(delta))
}

// Registry exposes the collector's Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.prom.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.prom.registry, promhttp.HandlerOpts{})
}
