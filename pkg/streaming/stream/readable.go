package stream

import (
	"io"

	"go.uber.org/zap"

	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/events"
	"github.com/vnykmshr/streamcore/pkg/metrics"
	"github.com/vnykmshr/streamcore/pkg/streaming/buffer"
)

// ProduceFunc refills a readable stream. It is called when the buffered size
// is below the low-water mark, no earlier call is still outstanding, and
// someone is consuming. size is the room left below the high-water mark.
//
// The call is outstanding until the producer calls Push, PushEnd or Fail,
// synchronously or later from any goroutine. Slow producers must return
// promptly and report asynchronously.
type ProduceFunc[T any] func(r *Readable[T], size int)

// ReadableConfig configures a Readable.
type ReadableConfig[T any] struct {
	// Name identifies the stream in logs, errors and metrics.
	Name string

	// HighWaterMark bounds the buffered size. Default: 16 KiB in byte mode, 16 chunks in object mode.
	HighWaterMark int

	// LowWaterMark is the size below which production is requested. Default: HighWaterMark.
	LowWaterMark int

	// Mode selects byte or object accounting. Default: ModeAuto.
	Mode Mode

	// Produce refills the buffer. It may be nil for streams fed only through Push.
	Produce ProduceFunc[T]

	// Destroy is called once on the stream's executor when it is destroyed.
	Destroy func(err error)

	// Backpressure selects when a source piped to several destinations pauses.
	Backpressure BackpressurePolicy

	// DisableAutoDestroy keeps the stream open after end has been emitted.
	DisableAutoDestroy bool

	// MaxListeners is the per-event leak warning threshold. Default: events.DefaultMaxListeners.
	MaxListeners int

	// Logger receives lifecycle logs. Default: no-op.
	Logger *zap.Logger

	// Metrics records stream activity. Default: none.
	Metrics *metrics.Registry
}

type flowMode int

const (
	flowIdle flowMode = iota
	flowOn
	flowOff
)

// Readable is a flow-controlled source of chunks.
//
// A Readable starts Idle. Attaching a data listener, piping it, or calling
// Resume makes it flow: buffered chunks are emitted as data events in FIFO
// order and production is requested as the buffer empties. Read pulls chunks
// instead. end is emitted once, after the last chunk has been consumed.
type Readable[T any] struct {
	c       *core
	sz      sizing[T]
	produce ProduceFunc[T]
	queue   *buffer.Queue[T]
	self    any

	mode       flowMode
	ended      bool
	reading    bool
	pumping    bool
	pumpQueued bool
	onEnd      func()

	// want is the byte count a pending Read(n) is waiting for, when it
	// exceeds the high-water mark.
	want int

	links         []*link[T]
	awaitingDrain int
	policy        BackpressurePolicy
}

// NewReadable creates a Readable from cfg.
func NewReadable[T any](cfg ReadableConfig[T]) (*Readable[T], error) {
	sz, err := resolveSizing[T]("stream", "", cfg.Mode, cfg.HighWaterMark, cfg.LowWaterMark)
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
	return newReadableSide(c, sz, cfg.Produce, cfg.Backpressure), nil
}

func newReadableSide[T any](c *core, sz sizing[T], produce ProduceFunc[T], policy BackpressurePolicy) *Readable[T] {
	r := &Readable[T]{
		c:       c,
		sz:      sz,
		produce: produce,
		queue:   buffer.New(sz.hwm, sz.sizeOf),
		policy:  policy,
	}
	r.self = r
	c.hasReadable = true
	c.discard = append(c.discard, func() { r.queue.Clear() })
	return r
}

// Push appends chunk to the buffer and reports whether the buffered size is
// still below the high-water mark. Cooperating producers stop at false.
// Pushes to a destroyed stream are ignored. Pushing after PushEnd destroys
// the stream with a protocol violation.
func (r *Readable[T]) Push(chunk T) bool {
	r.c.mu.Lock()
	if r.c.destroyed {
		r.c.mu.Unlock()
		return false
	}
	if r.ended {
		r.c.mu.Unlock()
		r.c.destroy(scerrors.NewProtocolViolation(r.c.name, "push", scerrors.ErrPushAfterEnd))
		return false
	}
	r.reading = false
	wasEmpty := r.queue.Len() == 0
	more := r.queue.Push(chunk)
	size := r.queue.Size()
	if r.want > 0 {
		more = size < r.want
	}
	notify := r.notifyLocked(wasEmpty || (r.want > 0 && size >= r.want))
	r.c.mu.Unlock()

	r.c.metrics.Buffered(r.c.name, "readable", size)
	notify()
	return more
}

// PushEnd signals that no more chunks will be produced. Buffered chunks are
// still delivered; end is emitted after the last one is consumed.
func (r *Readable[T]) PushEnd() {
	r.c.mu.Lock()
	if r.c.destroyed || r.ended {
		r.c.mu.Unlock()
		return
	}
	r.ended = true
	r.reading = false
	notify := r.notifyLocked(r.queue.Len() == 0)
	r.c.mu.Unlock()
	notify()
}

// Fail reports a producer failure. The stream is destroyed with a
// production error; buffered chunks are discarded.
func (r *Readable[T]) Fail(err error) {
	if err == nil {
		return
	}
	r.c.destroy(scerrors.NewProductionError(r.c.name, err))
}

// Unshift returns chunk to the head of the buffer, typically after a
// consumer read more than it could use.
func (r *Readable[T]) Unshift(chunk T) error {
	r.c.mu.Lock()
	if err := r.c.unusableLocked("unshift"); err != nil {
		r.c.mu.Unlock()
		return err
	}
	if r.c.endEmitted {
		r.c.mu.Unlock()
		return scerrors.NewProtocolViolation(r.c.name, "unshift", scerrors.ErrPushAfterEnd)
	}
	wasEmpty := r.queue.Len() == 0
	r.queue.Unshift(chunk)
	notify := r.notifyLocked(wasEmpty)
	r.c.mu.Unlock()
	notify()
	return nil
}

// notifyLocked decides how to react to new buffered data or end of data.
// The returned func must run after the lock is released.
func (r *Readable[T]) notifyLocked(wasEmpty bool) func() {
	if r.mode == flowOn {
		if r.pumping || r.pumpQueued {
			return func() {}
		}
		r.pumpQueued = true
		return func() { r.c.do(r.pump) }
	}
	if wasEmpty {
		return func() { r.c.emit(events.Readable, nil) }
	}
	return func() {}
}

// pump runs on the executor and moves chunks to data listeners while the
// stream is flowing, requesting production as the buffer empties.
func (r *Readable[T]) pump() {
	r.c.mu.Lock()
	r.pumpQueued = false
	r.pumping = true
	for !r.c.destroyed && r.mode == flowOn {
		if chunk, ok := r.queue.Shift(); ok {
			size := r.queue.Size()
			r.c.mu.Unlock()
			r.delivered(chunk, size)
			r.c.emitter.Emit(events.Data, chunk)
			r.c.mu.Lock()
			continue
		}
		if r.ended {
			if !r.c.endEmitted {
				r.c.endEmitted = true
				r.pumping = false
				r.c.mu.Unlock()
				r.emitEnd()
				return
			}
			break
		}
		if !r.shouldProduceLocked() {
			break
		}
		r.reading = true
		room := r.limitLocked() - r.queue.Size()
		r.c.mu.Unlock()
		r.produce(r, room)
		r.c.mu.Lock()
		if r.queue.Len() == 0 && !r.ended {
			break
		}
	}
	r.pumping = false
	r.c.mu.Unlock()
}

func (r *Readable[T]) shouldProduceLocked() bool {
	low := r.sz.lwm
	if r.want > 0 {
		low = r.want
	}
	return r.produce != nil && !r.reading && !r.ended && !r.c.destroyed &&
		r.queue.Size() < low
}

// limitLocked is the buffered size production aims for.
func (r *Readable[T]) limitLocked() int {
	if r.want > r.sz.hwm {
		return r.want
	}
	return r.sz.hwm
}

func (r *Readable[T]) delivered(chunk T, buffered int) {
	if r.c.metrics == nil {
		return
	}
	bytes := 0
	if r.sz.mode == ModeBytes {
		bytes = r.sz.sizeOf(chunk)
	}
	r.c.metrics.ChunkRead(r.c.name, bytes)
	r.c.metrics.Buffered(r.c.name, "readable", buffered)
}

// emitEnd runs on the executor.
func (r *Readable[T]) emitEnd() {
	r.c.emitter.Emit(events.End, nil)
	if r.onEnd != nil {
		r.onEnd()
	}
	r.c.maybeAutoDestroy()
}

// Read pulls up to one chunk from the buffer.
//
// It returns (chunk, true, nil) when data is available and (zero, false,
// nil) when nothing is buffered yet, in which case production is requested
// and a readable event follows once data arrives. Once the stream has ended
// and the buffer is empty it returns io.EOF, on every call. After a failure
// it returns a protocol violation wrapping the stored error.
//
// In byte mode with []byte chunks, n > 0 returns exactly n bytes, joining or
// splitting chunks, or nothing if fewer are buffered and more may come.
// Until such a read is satisfied, production continues past the high-water
// mark up to n bytes. Otherwise n is ignored and whole chunks are returned.
func (r *Readable[T]) Read(n int) (T, bool, error) {
	var zero T

	r.c.mu.Lock()
	for attempt := 0; ; attempt++ {
		if r.c.endEmitted && r.c.err == nil {
			r.c.mu.Unlock()
			return zero, false, io.EOF
		}
		if err := r.c.unusableLocked("read"); err != nil {
			r.c.mu.Unlock()
			return zero, false, err
		}
		if chunk, ok := r.takeLocked(n); ok {
			r.want = 0
			size := r.queue.Size()
			produce := r.shouldProduceLocked()
			if produce {
				r.reading = true
			}
			r.c.mu.Unlock()

			r.delivered(chunk, size)
			if produce {
				r.produce(r, r.sz.hwm-size)
			}
			return chunk, true, nil
		}
		if r.ended {
			emit := !r.c.endEmitted
			r.c.endEmitted = true
			r.c.mu.Unlock()
			if emit {
				r.c.do(r.emitEnd)
			}
			return zero, false, io.EOF
		}
		if n > r.sz.hwm && r.sz.mode == ModeBytes {
			r.want = n
		}
		if attempt > 0 || !r.shouldProduceLocked() {
			r.c.mu.Unlock()
			return zero, false, nil
		}
		r.reading = true
		room := r.limitLocked() - r.queue.Size()
		r.c.mu.Unlock()
		r.produce(r, room)
		r.c.mu.Lock()
	}
}

func (r *Readable[T]) takeLocked(n int) (T, bool) {
	if n > 0 && r.sz.mode == ModeBytes {
		if q, ok := any(r.queue).(*buffer.Queue[[]byte]); ok {
			b, ok := buffer.ReadBytes(q, n)
			if !ok && r.ended && q.Len() > 0 {
				b, ok = buffer.ReadAll(q), true
			}
			if !ok {
				var zero T
				return zero, false
			}
			return any(b).(T), true
		}
	}
	return r.queue.Shift()
}

// Pause stops the flow of data events. Buffered and newly produced chunks
// stay in the buffer until Resume or Read.
func (r *Readable[T]) Pause() {
	r.c.mu.Lock()
	if r.c.destroyed || r.mode == flowOff {
		r.c.mu.Unlock()
		return
	}
	r.mode = flowOff
	r.c.mu.Unlock()
	r.c.emit(events.Pause, nil)
}

// Resume switches the stream to flowing. Buffered chunks are emitted first,
// in order, before production is requested.
func (r *Readable[T]) Resume() {
	r.c.mu.Lock()
	if r.c.destroyed {
		r.c.mu.Unlock()
		return
	}
	changed := r.mode != flowOn
	r.mode = flowOn
	r.want = 0
	schedule := !r.pumping && !r.pumpQueued
	if schedule {
		r.pumpQueued = true
	}
	r.c.mu.Unlock()

	if changed {
		r.c.emit(events.Resume, nil)
	}
	if schedule {
		r.c.do(r.pump)
	}
}

// IsPaused reports whether the stream was explicitly paused.
func (r *Readable[T]) IsPaused() bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.mode == flowOff
}

func (r *Readable[T]) resumeIfIdle() {
	r.c.mu.Lock()
	idle := r.mode == flowIdle
	r.c.mu.Unlock()
	if idle {
		r.Resume()
	}
}

// On registers fn for ev. A data listener starts the flow of an Idle stream.
func (r *Readable[T]) On(ev events.Event, fn events.Listener, opts ...events.ListenerOption) events.ListenerID {
	id := r.c.on(ev, fn, false, opts...)
	if ev == events.Data {
		r.resumeIfIdle()
	}
	return id
}

// Once registers fn for the next emission of ev.
func (r *Readable[T]) Once(ev events.Event, fn events.Listener, opts ...events.ListenerOption) events.ListenerID {
	id := r.c.on(ev, fn, true, opts...)
	if ev == events.Data {
		r.resumeIfIdle()
	}
	return id
}

// Off removes a listener registered with On or Once.
func (r *Readable[T]) Off(ev events.Event, id events.ListenerID) bool {
	return r.c.emitter.Off(ev, id)
}

// OnData registers a typed data listener and starts the flow.
func (r *Readable[T]) OnData(fn func(chunk T)) events.ListenerID {
	return r.On(events.Data, func(p any) {
		chunk, _ := p.(T)
		fn(chunk)
	})
}

// OnEnd registers fn for the end event.
func (r *Readable[T]) OnEnd(fn func()) events.ListenerID {
	return r.c.on(events.End, onSignal(fn), false)
}

// OnError registers fn for the error event.
func (r *Readable[T]) OnError(fn func(err error)) events.ListenerID {
	return r.c.on(events.Error, onError(fn), false)
}

// OnClose registers fn for the close event.
func (r *Readable[T]) OnClose(fn func()) events.ListenerID {
	return r.c.on(events.Close, onSignal(fn), false)
}

// ListenerCount returns the number of listeners for ev.
func (r *Readable[T]) ListenerCount(ev events.Event) int {
	return r.c.emitter.ListenerCount(ev)
}

// ExternalListenerCount returns the number of listeners for ev not owned by pipe links.
func (r *Readable[T]) ExternalListenerCount(ev events.Event) int {
	return r.c.emitter.ExternalListenerCount(ev)
}

// State returns the current lifecycle state.
func (r *Readable[T]) State() State {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if s, ok := r.c.terminalStateLocked(); ok {
		return s
	}
	return r.stateLocked()
}

func (r *Readable[T]) stateLocked() State {
	switch {
	case r.ended:
		return Ended
	case r.mode == flowOn:
		return Flowing
	case r.mode == flowOff:
		return Paused
	default:
		return Idle
	}
}

// Destroy terminates the stream. Buffered chunks are discarded and the
// state becomes Closed (or Errored until close is emitted when err is
// non-nil). error (if any) and close are emitted, then every listener is removed.
func (r *Readable[T]) Destroy(err error) {
	r.c.destroy(err)
}

// Destroyed reports whether Destroy has been called.
func (r *Readable[T]) Destroyed() bool {
	return r.c.destroyedNow()
}

// Err returns the terminal error, if any.
func (r *Readable[T]) Err() error {
	return r.c.storedErr()
}

// Name returns the configured stream name.
func (r *Readable[T]) Name() string {
	return r.c.name
}

// ReadableLength returns the buffered size.
func (r *Readable[T]) ReadableLength() int {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.queue.Size()
}

// ReadableHighWaterMark returns the configured high-water mark.
func (r *Readable[T]) ReadableHighWaterMark() int {
	return r.sz.hwm
}

// ReadableEnded reports whether end has been emitted.
func (r *Readable[T]) ReadableEnded() bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.endEmitted
}

// ReadableMode returns the resolved accounting mode.
func (r *Readable[T]) ReadableMode() Mode {
	return r.sz.mode
}

func (r *Readable[T]) readableSide() *Readable[T] { return r }

func (r *Readable[T]) awaitDone(report func(error)) func() {
	return r.c.await(true, false, report)
}

func (r *Readable[T]) logPipe(msg string, dst *core) {
	r.c.logger.Debug(msg, zap.String("destination", dst.name))
}
