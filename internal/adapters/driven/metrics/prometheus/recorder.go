// Package prometheus records engine metrics with the Prometheus client.
package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// Ensure Recorder implements the interface.
var _ driven.MetricsRecorder = (*Recorder)(nil)

const namespace = "ragengine"

// Recorder owns a registry and the engine's collectors.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	cache      *prometheus.CounterVec
	chunks     prometheus.Histogram
	events     *prometheus.CounterVec
}

// New creates a recorder on a fresh registry, with Go and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Service operations by name and outcome",
			},
			[]string{"operation", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Latency of service operations",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"operation"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by cache and result",
			},
			[]string{"cache", "hit"},
		),
		chunks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_chunks",
				Help:      "Chunks produced per ingested or updated document",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Event bus publishes and deliveries by topic and outcome",
			},
			[]string{"topic", "outcome"},
		),
	}
	r.registry.MustRegister(
		r.operations, r.latency, r.cache, r.chunks, r.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveOperation(op, outcome string, d time.Duration) {
	r.operations.WithLabelValues(op, outcome).Inc()
	r.latency.WithLabelValues(op).Observe(d.Seconds())
}

func (r *Recorder) ObserveCache(cache string, hit bool) {
	r.cache.WithLabelValues(cache, strconv.FormatBool(hit)).Inc()
}

func (r *Recorder) ObserveChunks(n int) {
	r.chunks.Observe(float64(n))
}

func (r *Recorder) ObserveEvent(topic, outcome string) {
	r.events.WithLabelValues(topic, outcome).Inc()
}
