package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several instances (one per test
// server) never collide.
type Collector struct {
	registry         *prometheus.Registry
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	rateLimited      prometheus.Counter
	hierarchyChanges *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	jobRuns          *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hradmin",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hradmin",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hradmin",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests refused by the rate limiter.",
		}),
		hierarchyChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hradmin",
			Subsystem: "hierarchy",
			Name:      "mutations_total",
			Help:      "Hierarchy mutations by operation and result.",
		}, []string{"op", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hradmin",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Request status changes by target status and result.",
		}, []string{"to", "result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hradmin",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs by type and status.",
		}, []string{"job", "status"}),
	}
	c.registry.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.rateLimited,
		c.hierarchyChanges,
		c.transitions,
		c.jobRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Record is a no-op on a nil Collector, as are Mutation and Transition.
func (c *Collector) Record(route, method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
	if status == http.StatusTooManyRequests {
		c.rateLimited.Inc()
	}
}

// Mutation counts a hierarchy operation; result is "ok" or an error kind.
func (c *Collector) Mutation(op, result string) {
	if c == nil {
		return
	}
	c.hierarchyChanges.WithLabelValues(op, result).Inc()
}

// Transition counts a request status change attempt.
func (c *Collector) Transition(to, result string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(to, result).Inc()
}

func (c *Collector) JobRun(job, status string) {
	if c == nil {
		return
	}
	c.jobRuns.WithLabelValues(job, status).Inc()
}

// JobRuns exposes one job counter for inspection.
func (c *Collector) JobRuns(job, status string) prometheus.Counter {
	return c.jobRuns.WithLabelValues(job, status)
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
