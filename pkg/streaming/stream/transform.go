package stream

import (
	"sync/atomic"

	"go.uber.org/zap"

	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/metrics"
)

// TransformFunc turns one input chunk into zero or more output chunks.
// Output is handed over with push; done must be called exactly once when
// the chunk has been fully processed, with a non-nil error to fail the
// stream. The next chunk is not handed over before done is called.
type TransformFunc[In, Out any] func(chunk In, push func(Out) bool, done func(error))

// FlushFunc emits any remaining output after the last input chunk and
// before end. It must call done exactly once.
type FlushFunc[Out any] func(push func(Out) bool, done func(error))

// TransformConfig configures a Transform.
type TransformConfig[In, Out any] struct {
	// Name identifies the stream in logs, errors and metrics.
	Name string

	// ReadableHighWaterMark and ReadableMode configure the output side.
	ReadableHighWaterMark int
	ReadableMode          Mode

	// WritableHighWaterMark and WritableMode configure the input side.
	WritableHighWaterMark int
	WritableMode          Mode

	// Transform processes input chunks. Required.
	Transform TransformFunc[In, Out]

	// Flush runs once after the input side ended. Optional.
	Flush FlushFunc[Out]

	// Destroy is called once on the stream's executor when it is destroyed.
	Destroy func(err error)

	// Backpressure selects when the output side pauses if piped to several destinations.
	Backpressure BackpressurePolicy

	// DisableAutoDestroy keeps the stream open after both sides are done.
	DisableAutoDestroy bool

	// MaxListeners is the per-event leak warning threshold.
	MaxListeners int

	// Logger receives lifecycle logs. Default: no-op.
	Logger *zap.Logger

	// Metrics records stream activity. Default: none.
	Metrics *metrics.Registry
}

// Transform is a Duplex whose output is computed from its input.
//
// While the output buffer is at or above its high-water mark, the
// completion of the current input chunk is held back, so a slow reader
// stalls the writer. Ending the input side runs Flush and then ends the
// output side.
type Transform[In, Out any] struct {
	*Duplex[In, Out]

	fn    TransformFunc[In, Out]
	flush FlushFunc[Out]

	// held is the completion of an input chunk waiting for the output to drain.
	held func(error)
}

// NewTransform creates a Transform from cfg.
func NewTransform[In, Out any](cfg TransformConfig[In, Out]) (*Transform[In, Out], error) {
	if cfg.Transform == nil {
		return nil, scerrors.NewValidationError("stream", "Transform", nil, "cannot be nil").
			WithHint("use PassThrough for an identity stream")
	}

	t := &Transform[In, Out]{fn: cfg.Transform, flush: cfg.Flush}
	d, err := NewDuplex(DuplexConfig[In, Out]{
		Name:                  cfg.Name,
		ReadableHighWaterMark: cfg.ReadableHighWaterMark,
		ReadableMode:          cfg.ReadableMode,
		WritableHighWaterMark: cfg.WritableHighWaterMark,
		WritableMode:          cfg.WritableMode,
		Produce:               func(*Readable[Out], int) { t.release() },
		Write:                 t.write,
		Final:                 t.final,
		Destroy:               cfg.Destroy,
		Backpressure:          cfg.Backpressure,
		DisableAutoDestroy:    cfg.DisableAutoDestroy,
		MaxListeners:          cfg.MaxListeners,
		Logger:                cfg.Logger,
		Metrics:               cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	t.Duplex = d
	d.Readable.self = t
	d.Writable.self = t
	return t, nil
}

func (t *Transform[In, Out]) push(chunk Out) bool {
	return t.Readable.Push(chunk)
}

func (t *Transform[In, Out]) write(chunk In, done func(error)) {
	var called atomic.Bool
	t.fn(chunk, t.push, func(err error) {
		if !called.CompareAndSwap(false, true) {
			t.c.destroy(scerrors.NewProtocolViolation(t.c.name, "transform", scerrors.ErrMultipleCallback))
			return
		}
		if err != nil {
			t.c.destroy(scerrors.NewTransformError(t.c.name, err))
			return
		}

		t.c.mu.Lock()
		r := t.Readable
		if !t.c.destroyed && !r.ended && r.queue.Size() >= r.sz.hwm {
			t.held = done
			t.c.mu.Unlock()
			return
		}
		t.c.mu.Unlock()
		done(nil)
	})
}

// release completes a held input chunk once the output side asks for more.
func (t *Transform[In, Out]) release() {
	t.c.mu.Lock()
	done := t.held
	t.held = nil
	t.c.mu.Unlock()
	if done != nil {
		done(nil)
	}
}

func (t *Transform[In, Out]) final(done func(error)) {
	finish := func() {
		t.Readable.PushEnd()
		done(nil)
	}
	if t.flush == nil {
		finish()
		return
	}

	var called atomic.Bool
	t.flush(t.push, func(err error) {
		if !called.CompareAndSwap(false, true) {
			t.c.destroy(scerrors.NewProtocolViolation(t.c.name, "flush", scerrors.ErrMultipleCallback))
			return
		}
		if err != nil {
			t.c.destroy(&scerrors.StreamError{
				Kind:   scerrors.KindTransform,
				Stream: t.c.name,
				Op:     "flush",
				Err:    err,
			})
			return
		}
		finish()
	})
}

// stopUpstream ends the input side and destroys the stream piped into it.
// Used by transforms that end their output before their input.
func (t *Transform[In, Out]) stopUpstream() {
	t.c.mu.Lock()
	in := t.c.incoming
	t.c.mu.Unlock()

	if in != nil {
		if src, ok := in.Source().(interface{ Destroy(error) }); ok {
			t.c.logger.Debug("output ended early, stopping upstream")
			src.Destroy(nil)
		}
	}
	_ = t.Writable.End()
}
