// Package metrics holds the Prometheus collectors for the engine and the
// HTTP API. Each Collector owns its registry, so tests can create as many as
// they like without duplicate-registration panics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "constellation"

// Collector groups all constellation metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Runs              *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	EdgesWritten      prometheus.Counter
	ClustersWritten   prometheus.Counter
	DetectorFallbacks prometheus.Counter
	EmbedFailures     prometheus.Counter
	ExtractFailures   prometheus.Counter
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_runs_total",
			Help:      "Engine operations by name and outcome",
		}, []string{"operation", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_run_duration_seconds",
			Help:      "Engine operation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"operation"}),
		EdgesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_written_total",
			Help:      "Relationship edges persisted",
		}),
		ClustersWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clusters_written_total",
			Help:      "Clusters persisted",
		}),
		DetectorFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "community_fallbacks_total",
			Help:      "Times community detection fell back to connected components",
		}),
		EmbedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_failures_total",
			Help:      "Entries whose embedding could not be computed",
		}),
		ExtractFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_failures_total",
			Help:      "Entries whose entity extraction failed",
		}),
	}

	c.registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.Runs, c.RunDuration,
		c.EdgesWritten, c.ClustersWritten, c.DetectorFallbacks,
		c.EmbedFailures, c.ExtractFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the collectors are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRun records one engine operation.
func (c *Collector) ObserveRun(op string, start time.Time, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.Runs.WithLabelValues(op, outcome).Inc()
	c.RunDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveHTTP records one HTTP request.
func (c *Collector) ObserveHTTP(method, route, status string, took time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// AddEdges counts persisted edges.
func (c *Collector) AddEdges(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.EdgesWritten.Add(float64(n))
}

// AddClusters counts persisted clusters.
func (c *Collector) AddClusters(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ClustersWritten.Add(float64(n))
}

func (c *Collector) DetectorFellBack() {
	if c != nil {
		c.DetectorFallbacks.Inc()
	}
}

func (c *Collector) EmbedFailed() {
	if c != nil {
		c.EmbedFailures.Inc()
	}
}

func (c *Collector) ExtractFailed() {
	if c != nil {
		c.ExtractFailures.Inc()
	}
}
