package stream

import (
	"context"
	"sync"
)

// Collector is a Writable that keeps every chunk written to it.
type Collector[T any] struct {
	*Writable[T]

	mu    sync.Mutex
	items []T
}

// NewCollector returns an empty Collector.
func NewCollector[T any](opts ...Option) *Collector[T] {
	col := &Collector[T]{}
	cfg := writableConfig[T](newOptions("collector", opts))
	cfg.Write = func(chunk T, done func(error)) {
		col.mu.Lock()
		col.items = append(col.items, chunk)
		col.mu.Unlock()
		done(nil)
	}
	col.Writable = mustWritable(cfg)
	col.Writable.self = col
	return col
}

// Items returns a copy of the chunks collected so far.
func (c *Collector[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// ForEach returns a Writable that calls fn for every chunk. An error from
// fn fails the stream.
func ForEach[T any](fn func(T) error, opts ...Option) *Writable[T] {
	cfg := writableConfig[T](newOptions("foreach", opts))
	cfg.Write = func(chunk T, done func(error)) {
		done(fn(chunk))
	}
	return mustWritable(cfg)
}

// ToChannel returns a Writable that sends every chunk to ch, waiting for
// the receiver without blocking the writer. ch is closed when the stream
// finishes; it is left open if the stream is destroyed first.
func ToChannel[T any](ch chan<- T, opts ...Option) *Writable[T] {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := writableConfig[T](newOptions("channel", opts))
	cfg.Write = func(chunk T, done func(error)) {
		select {
		case ch <- chunk:
			done(nil)
			return
		default:
		}
		go func() {
			select {
			case ch <- chunk:
				done(nil)
			case <-ctx.Done():
			}
		}()
	}
	cfg.Final = func(done func(error)) {
		close(ch)
		done(nil)
	}
	cfg.Destroy = func(error) { cancel() }
	return mustWritable(cfg)
}

// ToSlice pipes src into a Collector and returns the collected chunks once
// src has ended. On failure it returns the chunks collected so far with the error.
func ToSlice[T any](ctx context.Context, src Origin[T], opts ...Option) ([]T, error) {
	sink := NewCollector[T](opts...)
	err := Pipeline(ctx, src, sink)
	return sink.Items(), err
}
