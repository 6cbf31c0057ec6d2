package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Source is a pull-based producer. FromSource adapts it into a Readable.
type Source[T any] interface {
	// Next returns the next element and true, or zero value and false if no more elements.
	Next(ctx context.Context) (T, bool, error)
	// Close closes the source and releases resources.
	Close() error
}

// FromSlice returns a Readable that emits items in order and then ends.
func FromSlice[T any](items []T, opts ...Option) *Readable[T] {
	cfg := readableConfig[T](newOptions("slice", opts))
	i := 0
	cfg.Produce = func(r *Readable[T], _ int) {
		for i < len(items) {
			chunk := items[i]
			i++
			if !r.Push(chunk) {
				return
			}
		}
		r.PushEnd()
	}
	return mustReadable(cfg)
}

// Generate returns an infinite Readable of the values returned by fn.
func Generate[T any](fn func() T, opts ...Option) *Readable[T] {
	cfg := readableConfig[T](newOptions("generate", opts))
	cfg.Produce = func(r *Readable[T], _ int) {
		for {
			if !r.Push(fn()) {
				return
			}
		}
	}
	return mustReadable(cfg)
}

// Empty returns a Readable that ends without emitting data.
func Empty[T any](opts ...Option) *Readable[T] {
	r := mustReadable(readableConfig[T](newOptions("empty", opts)))
	r.PushEnd()
	return r
}

// FromChannel returns a Readable of the values received from ch. It ends
// when ch is closed.
func FromChannel[T any](ch <-chan T, opts ...Option) *Readable[T] {
	return FromSource[T](&channelSource[T]{ch: ch}, append([]Option{WithName("channel")}, opts...)...)
}

// FromReader returns a Readable of the bytes read from rd, in chunks of at
// most the configured chunk size. rd is not closed.
func FromReader(rd io.Reader, opts ...Option) *Readable[[]byte] {
	o := newOptions("reader", opts)
	return FromSource[[]byte](&readerSource{rd: rd, size: o.chunkSize}, append([]Option{WithName("reader")}, opts...)...)
}

// FromSource returns a Readable fed by src.
//
// src is pulled from a single goroutine, started on the first demand and
// parked while the buffer is full. A Next error fails the stream; exhaustion
// ends it. src is closed exactly once, when the stream ends, fails or is
// destroyed; destroying the stream cancels the context passed to Next.
func FromSource[T any](src Source[T], opts ...Option) *Readable[T] {
	o := newOptions("source", opts)
	ctx, cancel := context.WithCancel(context.Background())
	p := &sourcePuller[T]{
		src:    src,
		ctx:    ctx,
		cancel: cancel,
		want:   make(chan struct{}, 1),
	}

	cfg := readableConfig[T](o)
	cfg.Produce = p.produce
	cfg.Destroy = p.destroy
	r := mustReadable(cfg)
	p.logger = r.c.logger
	return r
}

type sourcePuller[T any] struct {
	src    Source[T]
	ctx    context.Context
	cancel context.CancelFunc
	want   chan struct{}
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	closed  sync.Once
}

func (p *sourcePuller[T]) produce(r *Readable[T], _ int) {
	select {
	case p.want <- struct{}{}:
	default:
	}

	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run(r)
}

func (p *sourcePuller[T]) destroy(error) {
	p.cancel()
	p.mu.Lock()
	started := p.started
	p.stopped = true
	p.mu.Unlock()
	if !started {
		p.close()
	}
}

func (p *sourcePuller[T]) close() {
	p.closed.Do(func() {
		if err := p.src.Close(); err != nil {
			p.logger.Warn("source close failed", zap.Error(err))
		}
	})
}

func (p *sourcePuller[T]) run(r *Readable[T]) {
	defer func() {
		p.cancel()
		p.close()
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.want:
		}

		for {
			chunk, ok, err := p.src.Next(p.ctx)
			if err != nil {
				if p.ctx.Err() == nil {
					r.Fail(err)
				}
				return
			}
			if !ok {
				r.PushEnd()
				return
			}
			if !r.Push(chunk) {
				break
			}
		}
	}
}

type channelSource[T any] struct {
	ch <-chan T
}

func (s *channelSource[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T

	select {
	case value, ok := <-s.ch:
		if !ok {
			return zero, false, nil
		}
		return value, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (s *channelSource[T]) Close() error {
	return nil
}

type readerSource struct {
	rd   io.Reader
	size int
	eof  bool
}

func (s *readerSource) Next(ctx context.Context) ([]byte, bool, error) {
	for !s.eof {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		buf := make([]byte, s.size)
		n, err := s.rd.Read(buf)
		if errors.Is(err, io.EOF) {
			s.eof = true
		} else if err != nil {
			return nil, false, err
		}
		if n > 0 {
			return buf[:n], true, nil
		}
	}
	return nil, false, nil
}

func (s *readerSource) Close() error {
	return nil
}
