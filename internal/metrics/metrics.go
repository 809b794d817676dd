package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studiowebux/swarmcli/internal/types"
)

const namespace = "swarmcli"

var statuses = []types.Status{
	types.StatusCreated,
	types.StatusRunning,
	types.StatusStopped,
	types.StatusFinished,
}

// Collector exposes the latest test report as Prometheus gauges. Counters
// are snapshots of the test's own totals, so they are set rather than added.
type Collector struct {
	registry *prometheus.Registry

	requests         prometheus.Gauge
	failed           prometheus.Gauge
	connectionErrors prometheus.Gauge
	avgResponseTime  prometheus.Gauge
	requestsPerSec   prometheus.Gauge
	failedPerSec     prometheus.Gauge
	users            prometheus.Gauge
	elapsed          prometheus.Gauge
	status           *prometheus.GaugeVec

	endpointRequests *prometheus.GaugeVec
	endpointFailed   *prometheus.GaugeVec
	endpointAvg      *prometheus.GaugeVec

	observations prometheus.Counter
}

// New creates a collector registered on its own registry
func New() *Collector {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}
	endpointGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Subsystem: "endpoint", Name: name, Help: help},
			[]string{"method", "url"},
		)
	}

	c := &Collector{
		registry:         prometheus.NewRegistry(),
		requests:         gauge("requests", "Requests that received a response"),
		failed:           gauge("failed_requests", "Requests answered outside 2xx/3xx"),
		connectionErrors: gauge("connection_errors", "Attempts that never received a response"),
		avgResponseTime:  gauge("average_response_time_ms", "Mean latency of successful requests in milliseconds"),
		requestsPerSec:   gauge("requests_per_second", "Requests per second over the test window"),
		failedPerSec:     gauge("failed_per_second", "Failed requests per second over the test window"),
		users:            gauge("users", "Configured virtual users"),
		elapsed:          gauge("elapsed_seconds", "Test run time so far"),
		status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "status", Help: "1 for the current test status"},
			[]string{"status"},
		),
		endpointRequests: endpointGauge("requests", "Requests per endpoint"),
		endpointFailed:   endpointGauge("failed_requests", "Failed requests per endpoint"),
		endpointAvg:      endpointGauge("average_response_time_ms", "Mean latency per endpoint in milliseconds"),
		observations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Reports observed",
		}),
	}

	c.registry.MustRegister(
		c.requests, c.failed, c.connectionErrors, c.avgResponseTime,
		c.requestsPerSec, c.failedPerSec, c.users, c.elapsed, c.status,
		c.endpointRequests, c.endpointFailed, c.endpointAvg, c.observations,
	)
	return c
}

// Observe updates every gauge from report. It matches stresstest.Observer.
func (c *Collector) Observe(report types.Report) {
	r := report.Results
	c.requests.Set(float64(r.TotalRequests))
	c.failed.Set(float64(r.TotalFailed))
	c.connectionErrors.Set(float64(r.TotalConnectionErrors))
	c.avgResponseTime.Set(r.AverageResponseTimeMs)
	c.requestsPerSec.Set(r.RequestsPerSecond)
	c.failedPerSec.Set(r.FailedPerSecond)
	c.users.Set(float64(report.UserCount))
	c.elapsed.Set(float64(report.ElapsedMs) / 1000)

	for _, s := range statuses {
		value := 0.0
		if s == report.Status {
			value = 1
		}
		c.status.WithLabelValues(string(s)).Set(value)
	}

	for _, ep := range report.Endpoints {
		method := string(ep.Method)
		c.endpointRequests.WithLabelValues(method, ep.URL).Set(float64(ep.Results.TotalRequests))
		c.endpointFailed.WithLabelValues(method, ep.URL).Set(float64(ep.Results.TotalFailed))
		c.endpointAvg.WithLabelValues(method, ep.URL).Set(ep.Results.AverageResponseTimeMs)
	}

	c.observations.Inc()
}

// Reset clears per-endpoint series, used when a new test replaces the old one
func (c *Collector) Reset() {
	c.endpointRequests.Reset()
	c.endpointFailed.Reset()
	c.endpointAvg.Reset()
}

// Registry returns the registry the collector's metrics live in
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
