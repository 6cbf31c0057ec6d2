// Package metrics provides Prometheus instrumentation for streamcore streams.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for streamcore components.
//
// All recording methods are safe to call on a nil *Registry, which records
// nothing. Streams built without a registry pay no instrumentation cost.
type Registry struct {
	// Chunk flow
	ChunksRead    *prometheus.CounterVec
	ChunksWritten *prometheus.CounterVec
	BytesRead     *prometheus.CounterVec
	BytesWritten  *prometheus.CounterVec

	// Flow control
	BufferedSize       *prometheus.GaugeVec
	BackpressureEvents *prometheus.CounterVec
	DrainEvents        *prometheus.CounterVec

	// Failures and latency
	StreamErrors  *prometheus.CounterVec
	WriteDuration *prometheus.HistogramVec
}

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "streamcore"

// DefaultRegistry is the default metrics registry used by streamcore components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Registry: reg, Namespace: DefaultNamespace, Enabled: true})
}

// NewRegistryWithConfig creates a registry from cfg. It returns nil when
// metrics are disabled.
func NewRegistryWithConfig(cfg Config) *Registry {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}

	factory := promauto.With(cfg.Registry)
	ns := cfg.Namespace
	labels := cfg.Labels

	return &Registry{
		ChunksRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "readable",
				Name:        "chunks_total",
				Help:        "Total number of chunks delivered by readable streams",
				ConstLabels: labels,
			},
			[]string{"stream_name"},
		),

		ChunksWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writable",
				Name:        "chunks_total",
				Help:        "Total number of chunks consumed by writable streams",
				ConstLabels: labels,
			},
			[]string{"stream_name"},
		),

		BytesRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "readable",
				Name:        "bytes_total",
				Help:        "Total bytes delivered by byte-mode readable streams",
				ConstLabels: labels,
			},
			[]string{"stream_name"},
		),

		BytesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "writable",
				Name:        "bytes_total",
				Help:        "Total bytes consumed by byte-mode writable streams",
				ConstLabels: labels,
			},
			[]string{"stream_name"},
		),

		BufferedSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "stream",
				Name:        "buffered_size",
				Help:        "Current buffered size measured against the high-water mark",
				ConstLabels: labels,
			},
			[]string{"stream_name", "side"},
		),

		BackpressureEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "backpressure",
				Name:        "events_total",
				Help:        "Total number of writes that reached the high-water mark",
				ConstLabels: labels,
			},
			[]string{"stream_name"},
		),

		DrainEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "backpressure",
				Name:        "drains_total",
				Help:        "Total number of drain signals emitted",
				ConstLabels: labels,
			},
			[]string{"stream_name"},
		),

		StreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "stream",
				Name:        "errors_total",
				Help:        "Total number of terminal stream errors by kind",
				ConstLabels: labels,
			},
			[]string{"stream_name", "kind"},
		),

		WriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "writable",
				Name:        "write_duration_seconds",
				Help:        "Time between handing a chunk to the sink and its completion",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"stream_name"},
		),
	}
}

// ChunkRead records one chunk delivered to a consumer.
func (r *Registry) ChunkRead(stream string, bytes int) {
	if r == nil {
		return
	}
	r.ChunksRead.WithLabelValues(stream).Inc()
	if bytes > 0 {
		r.BytesRead.WithLabelValues(stream).Add(float64(bytes))
	}
}

// ChunkWritten records one chunk consumed by a sink and how long it took.
func (r *Registry) ChunkWritten(stream string, bytes int, d time.Duration) {
	if r == nil {
		return
	}
	r.ChunksWritten.WithLabelValues(stream).Inc()
	if bytes > 0 {
		r.BytesWritten.WithLabelValues(stream).Add(float64(bytes))
	}
	r.WriteDuration.WithLabelValues(stream).Observe(d.Seconds())
}

// Buffered sets the buffered size of one side ("readable" or "writable") of a stream.
func (r *Registry) Buffered(stream, side string, size int) {
	if r == nil {
		return
	}
	r.BufferedSize.WithLabelValues(stream, side).Set(float64(size))
}

// Backpressure records a write that returned false.
func (r *Registry) Backpressure(stream string) {
	if r == nil {
		return
	}
	r.BackpressureEvents.WithLabelValues(stream).Inc()
}

// Drain records an emitted drain signal.
func (r *Registry) Drain(stream string) {
	if r == nil {
		return
	}
	r.DrainEvents.WithLabelValues(stream).Inc()
}

// Error records a terminal error of the given kind.
func (r *Registry) Error(stream, kind string) {
	if r == nil {
		return
	}
	r.StreamErrors.WithLabelValues(stream, kind).Inc()
}
