package stream

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/events"
	"github.com/vnykmshr/streamcore/pkg/metrics"
	"github.com/vnykmshr/streamcore/pkg/streaming/buffer"
)

// WriteFunc consumes one chunk and must call done exactly once, from any
// goroutine, when the chunk has been accepted by the underlying sink. The
// next chunk is not handed over before done is called.
type WriteFunc[T any] func(chunk T, done func(error))

// FinalFunc runs after the last chunk is consumed and before finish is
// emitted. It must call done exactly once.
type FinalFunc func(done func(error))

// WritableConfig configures a Writable.
type WritableConfig[T any] struct {
	// Name identifies the stream in logs, errors and metrics.
	Name string

	// HighWaterMark is the buffered size at which Write starts returning false.
	// Default: 16 KiB in byte mode, 16 chunks in object mode.
	HighWaterMark int

	// Mode selects byte or object accounting. Default: ModeAuto.
	Mode Mode

	// Write consumes chunks one at a time. Required.
	Write WriteFunc[T]

	// Final flushes the sink before finish. Optional.
	Final FinalFunc

	// Destroy is called once on the stream's executor when it is destroyed.
	Destroy func(err error)

	// DisableAutoDestroy keeps the stream open after finish has been emitted.
	DisableAutoDestroy bool

	// MaxListeners is the per-event leak warning threshold. Default: events.DefaultMaxListeners.
	MaxListeners int

	// Logger receives lifecycle logs. Default: no-op.
	Logger *zap.Logger

	// Metrics records stream activity. Default: none.
	Metrics *metrics.Registry
}

type writeRequest[T any] struct {
	chunk T
	cb    func(error)
}

// Writable is a flow-controlled sink.
//
// Write enqueues a chunk and reports false once the buffered size, including
// the chunk being consumed, reaches the high-water mark. drain is emitted
// once each time the size falls back below the mark. After End, queued
// chunks are still consumed and finish is emitted when all are done.
type Writable[T any] struct {
	c     *core
	sz    sizing[T]
	write WriteFunc[T]
	final FinalFunc
	queue *buffer.Queue[writeRequest[T]]
	self  any

	inFlight      bool
	inFlightSize  int
	consumeQueued bool
	needDrain     bool
	ending        bool
	finalStarted  bool
	onFinish      func()
}

// NewWritable creates a Writable from cfg.
func NewWritable[T any](cfg WritableConfig[T]) (*Writable[T], error) {
	if err := requireWrite(cfg.Write); err != nil {
		return nil, err
	}
	sz, err := resolveSizing[T]("stream", "", cfg.Mode, cfg.HighWaterMark, 0)
	if err != nil {
		return nil, err
	}
	c := newCore(coreConfig{
		name:               cfg.Name,
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
		maxListeners:       cfg.MaxListeners,
		disableAutoDestroy: cfg.DisableAutoDestroy,
		onDestroy:          cfg.Destroy,
	})
	return newWritableSide(c, sz, cfg.Write, cfg.Final), nil
}

func requireWrite[T any](fn WriteFunc[T]) error {
	if fn == nil {
		return scerrors.NewValidationError("stream", "Write", nil, "cannot be nil").
			WithHint("provide the function that consumes chunks")
	}
	return nil
}

func newWritableSide[T any](c *core, sz sizing[T], write WriteFunc[T], final FinalFunc) *Writable[T] {
	w := &Writable[T]{
		c:     c,
		sz:    sz,
		write: write,
		final: final,
		queue: buffer.New(sz.hwm, func(req writeRequest[T]) int { return sz.sizeOf(req.chunk) }),
	}
	w.self = w
	c.hasWritable = true
	c.discard = append(c.discard, func() {
		w.queue.Clear()
		w.inFlightSize = 0
		w.needDrain = false
	})
	return w
}

// Write enqueues chunk for consumption and reports whether the caller may
// keep writing. On false, wait for drain before writing again, or accept
// the extra buffering. Writing after End or after the stream failed returns
// a protocol violation.
func (w *Writable[T]) Write(chunk T) (bool, error) {
	return w.enqueue("write", chunk, nil)
}

// WriteCallback is Write with a completion callback. cb runs exactly once,
// after the chunk was consumed or with the consumption error, and never
// after the stream is destroyed.
func (w *Writable[T]) WriteCallback(chunk T, cb func(error)) (bool, error) {
	return w.enqueue("write", chunk, cb)
}

func (w *Writable[T]) enqueue(op string, chunk T, cb func(error)) (bool, error) {
	w.c.mu.Lock()
	if err := w.c.unusableLocked(op); err != nil {
		w.c.mu.Unlock()
		return false, err
	}
	if w.ending {
		w.c.mu.Unlock()
		return false, scerrors.NewProtocolViolation(w.c.name, op, scerrors.ErrWriteAfterEnd)
	}
	w.queue.Push(writeRequest[T]{chunk: chunk, cb: cb})
	size := w.sizeLocked()
	ok := size < w.sz.hwm
	if !ok {
		w.needDrain = true
	}
	start := w.scheduleConsumeLocked()
	w.c.mu.Unlock()

	w.c.metrics.Buffered(w.c.name, "writable", size)
	if !ok {
		w.c.metrics.Backpressure(w.c.name)
	}
	if start {
		w.c.do(w.consume)
	}
	return ok, nil
}

func (w *Writable[T]) sizeLocked() int {
	return w.queue.Size() + w.inFlightSize
}

func (w *Writable[T]) scheduleConsumeLocked() bool {
	if w.inFlight || w.consumeQueued {
		return false
	}
	w.consumeQueued = true
	return true
}

// consume runs on the executor and hands the next chunk to the sink.
func (w *Writable[T]) consume() {
	w.c.mu.Lock()
	w.consumeQueued = false
	if w.c.destroyed || w.inFlight {
		w.c.mu.Unlock()
		return
	}
	req, ok := w.queue.Shift()
	if !ok {
		finish := w.ending && !w.finalStarted && !w.c.finished
		if finish {
			w.finalStarted = true
		}
		w.c.mu.Unlock()
		if finish {
			w.runFinal()
		}
		return
	}
	w.inFlight = true
	w.inFlightSize = w.sz.sizeOf(req.chunk)
	gen := w.c.generation
	w.c.mu.Unlock()

	start := time.Now()
	var called atomic.Bool
	w.write(req.chunk, func(err error) {
		if !called.CompareAndSwap(false, true) {
			w.c.destroy(scerrors.NewProtocolViolation(w.c.name, "write", scerrors.ErrMultipleCallback))
			return
		}
		w.c.do(func() { w.afterWrite(gen, req, err, time.Since(start)) })
	})
}

func (w *Writable[T]) afterWrite(gen uint64, req writeRequest[T], err error, took time.Duration) {
	w.c.mu.Lock()
	if w.c.destroyed || w.c.generation != gen {
		w.c.mu.Unlock()
		return
	}
	consumed := w.inFlightSize
	w.inFlight = false
	w.inFlightSize = 0
	if err != nil {
		w.c.mu.Unlock()
		if req.cb != nil {
			req.cb(err)
		}
		w.c.destroy(scerrors.NewConsumptionError(w.c.name, err))
		return
	}
	size := w.sizeLocked()
	drain := w.needDrain && size < w.sz.hwm
	if drain {
		w.needDrain = false
	}
	w.c.mu.Unlock()

	if w.c.metrics != nil {
		bytes := 0
		if w.sz.mode == ModeBytes {
			bytes = consumed
		}
		w.c.metrics.ChunkWritten(w.c.name, bytes, took)
		w.c.metrics.Buffered(w.c.name, "writable", size)
	}
	if req.cb != nil {
		req.cb(nil)
	}
	if drain {
		w.c.metrics.Drain(w.c.name)
		w.c.emitter.Emit(events.Drain, nil)
	}
	w.consume()
}

func (w *Writable[T]) runFinal() {
	if w.final == nil {
		w.emitFinish()
		return
	}
	gen := w.c.currentGeneration()
	var called atomic.Bool
	w.final(func(err error) {
		if !called.CompareAndSwap(false, true) {
			w.c.destroy(scerrors.NewProtocolViolation(w.c.name, "final", scerrors.ErrMultipleCallback))
			return
		}
		w.c.do(func() {
			if w.c.currentGeneration() != gen || w.c.destroyedNow() {
				return
			}
			if err != nil {
				w.c.destroy(&scerrors.StreamError{
					Kind:   scerrors.KindConsumption,
					Stream: w.c.name,
					Op:     "final",
					Err:    err,
				})
				return
			}
			w.emitFinish()
		})
	})
}

// emitFinish runs on the executor.
func (w *Writable[T]) emitFinish() {
	w.c.mu.Lock()
	if w.c.destroyed {
		w.c.mu.Unlock()
		return
	}
	w.c.finished = true
	w.c.mu.Unlock()

	w.c.emitter.Emit(events.Finish, nil)
	if w.onFinish != nil {
		w.onFinish()
	}
	w.c.maybeAutoDestroy()
}

// End signals that no more chunks will be written, after writing the
// optional final chunks. Queued chunks are still consumed; finish is
// emitted once they all are. Calling End again without chunks is a no-op.
func (w *Writable[T]) End(final ...T) error {
	w.c.mu.Lock()
	if w.ending && len(final) == 0 {
		w.c.mu.Unlock()
		return nil
	}
	if err := w.c.unusableLocked("end"); err != nil {
		w.c.mu.Unlock()
		return err
	}
	if w.ending {
		w.c.mu.Unlock()
		return scerrors.NewProtocolViolation(w.c.name, "end", scerrors.ErrWriteAfterEnd)
	}
	for _, chunk := range final {
		w.queue.Push(writeRequest[T]{chunk: chunk})
	}
	w.ending = true
	start := w.scheduleConsumeLocked()
	w.c.mu.Unlock()

	if start {
		w.c.do(w.consume)
	}
	return nil
}

// NeedDrain reports whether a write returned false and drain has not been emitted since.
func (w *Writable[T]) NeedDrain() bool {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.needDrain
}

// WritableLength returns the buffered size, including the chunk being consumed.
func (w *Writable[T]) WritableLength() int {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.sizeLocked()
}

// WritableHighWaterMark returns the configured high-water mark.
func (w *Writable[T]) WritableHighWaterMark() int {
	return w.sz.hwm
}

// WritableEnded reports whether End has been called.
func (w *Writable[T]) WritableEnded() bool {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.ending
}

// WritableFinished reports whether finish has been emitted.
func (w *Writable[T]) WritableFinished() bool {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.c.finished
}

// WritableMode returns the resolved accounting mode.
func (w *Writable[T]) WritableMode() Mode {
	return w.sz.mode
}

// On registers fn for ev.
func (w *Writable[T]) On(ev events.Event, fn events.Listener, opts ...events.ListenerOption) events.ListenerID {
	return w.c.on(ev, fn, false, opts...)
}

// Once registers fn for the next emission of ev.
func (w *Writable[T]) Once(ev events.Event, fn events.Listener, opts ...events.ListenerOption) events.ListenerID {
	return w.c.on(ev, fn, true, opts...)
}

// Off removes a listener registered with On or Once.
func (w *Writable[T]) Off(ev events.Event, id events.ListenerID) bool {
	return w.c.emitter.Off(ev, id)
}

// OnDrain registers fn for the drain event.
func (w *Writable[T]) OnDrain(fn func()) events.ListenerID {
	return w.c.on(events.Drain, onSignal(fn), false)
}

// OnFinish registers fn for the finish event.
func (w *Writable[T]) OnFinish(fn func()) events.ListenerID {
	return w.c.on(events.Finish, onSignal(fn), false)
}

// OnError registers fn for the error event.
func (w *Writable[T]) OnError(fn func(err error)) events.ListenerID {
	return w.c.on(events.Error, onError(fn), false)
}

// OnClose registers fn for the close event.
func (w *Writable[T]) OnClose(fn func()) events.ListenerID {
	return w.c.on(events.Close, onSignal(fn), false)
}

// ListenerCount returns the number of listeners for ev.
func (w *Writable[T]) ListenerCount(ev events.Event) int {
	return w.c.emitter.ListenerCount(ev)
}

// ExternalListenerCount returns the number of listeners for ev not owned by pipe links.
func (w *Writable[T]) ExternalListenerCount(ev events.Event) int {
	return w.c.emitter.ExternalListenerCount(ev)
}

// State returns the current lifecycle state.
func (w *Writable[T]) State() State {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	if s, ok := w.c.terminalStateLocked(); ok {
		return s
	}
	return w.stateLocked()
}

func (w *Writable[T]) stateLocked() State {
	switch {
	case w.ending:
		return Ended
	case w.needDrain:
		return Paused
	case w.inFlight || w.queue.Len() > 0:
		return Flowing
	default:
		return Idle
	}
}

// Destroy terminates the stream. Queued chunks are discarded and pending
// completion callbacks are never invoked.
func (w *Writable[T]) Destroy(err error) {
	w.c.destroy(err)
}

// Destroyed reports whether Destroy has been called.
func (w *Writable[T]) Destroyed() bool {
	return w.c.destroyedNow()
}

// Err returns the terminal error, if any.
func (w *Writable[T]) Err() error {
	return w.c.storedErr()
}

// Name returns the configured stream name.
func (w *Writable[T]) Name() string {
	return w.c.name
}

func (w *Writable[T]) writableSide() *Writable[T] { return w }

func (w *Writable[T]) awaitDone(report func(error)) func() {
	return w.c.await(false, true, report)
}

func (w *Writable[T]) awaitFinish(report func(error)) func() {
	return w.c.await(false, true, report)
}
