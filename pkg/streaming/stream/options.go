package stream

import (
	"go.uber.org/zap"

	"github.com/vnykmshr/streamcore/pkg/metrics"
)

// DefaultChunkSize is the read size FromReader uses unless WithChunkSize is given.
const DefaultChunkSize = 16 * 1024

// Option configures the streams built by the constructors in this package
// (sources, sinks and library transforms).
type Option func(*options)

type options struct {
	name      string
	hwm       int
	mode      Mode
	chunkSize int
	logger    *zap.Logger
	metrics   *metrics.Registry
}

// WithName sets the stream name used in logs, errors and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithHighWaterMark sets the high-water mark of every side of the stream.
// Values <= 0 keep the default.
func WithHighWaterMark(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.hwm = n
		}
	}
}

// WithObjectMode counts every chunk as 1, even []byte and string chunks.
func WithObjectMode() Option {
	return func(o *options) {
		o.mode = ModeObject
	}
}

// WithChunkSize sets the read size of FromReader. Values <= 0 keep DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records the stream's activity in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) {
		o.metrics = reg
	}
}

func newOptions(name string, opts []Option) options {
	o := options{name: name, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func readableConfig[T any](o options) ReadableConfig[T] {
	return ReadableConfig[T]{
		Name:          o.name,
		HighWaterMark: o.hwm,
		Mode:          o.mode,
		Logger:        o.logger,
		Metrics:       o.metrics,
	}
}

func writableConfig[T any](o options) WritableConfig[T] {
	return WritableConfig[T]{
		Name:          o.name,
		HighWaterMark: o.hwm,
		Mode:          o.mode,
		Logger:        o.logger,
		Metrics:       o.metrics,
	}
}

func transformConfig[In, Out any](o options) TransformConfig[In, Out] {
	return TransformConfig[In, Out]{
		Name:                  o.name,
		ReadableHighWaterMark: o.hwm,
		ReadableMode:          o.mode,
		WritableHighWaterMark: o.hwm,
		WritableMode:          o.mode,
		Logger:                o.logger,
		Metrics:               o.metrics,
	}
}

// The options above cannot produce an invalid config, so construction
// errors are programming errors.

func mustReadable[T any](cfg ReadableConfig[T]) *Readable[T] {
	r, err := NewReadable(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

func mustWritable[T any](cfg WritableConfig[T]) *Writable[T] {
	w, err := NewWritable(cfg)
	if err != nil {
		panic(err)
	}
	return w
}

func mustTransform[In, Out any](cfg TransformConfig[In, Out]) *Transform[In, Out] {
	t, err := NewTransform(cfg)
	if err != nil {
		panic(err)
	}
	return t
}
