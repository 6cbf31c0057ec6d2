package stream

import (
	"go.uber.org/zap"

	"github.com/vnykmshr/streamcore/pkg/events"
	"github.com/vnykmshr/streamcore/pkg/metrics"
)

// DuplexConfig configures a Duplex.
type DuplexConfig[W, R any] struct {
	// Name identifies the stream in logs, errors and metrics.
	Name string

	// ReadableHighWaterMark, ReadableLowWaterMark and ReadableMode configure the read side.
	ReadableHighWaterMark int
	ReadableLowWaterMark  int
	ReadableMode          Mode

	// WritableHighWaterMark and WritableMode configure the write side.
	WritableHighWaterMark int
	WritableMode          Mode

	// Produce refills the read side. Optional.
	Produce ProduceFunc[R]

	// Write consumes chunks written to the write side. Required.
	Write WriteFunc[W]

	// Final flushes the write side before finish. Optional.
	Final FinalFunc

	// Destroy is called once on the stream's executor when it is destroyed.
	Destroy func(err error)

	// EndTogether ends the other side when one side ends. By default the
	// sides are half-closed independently.
	EndTogether bool

	// Backpressure selects when the read side pauses if piped to several destinations.
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

// Duplex is a stream with an independent readable side and writable side.
//
// Each side keeps its own buffer and its own end state. Ending the write
// side does not end the read side and vice versa unless EndTogether is set.
// Both sides share one set of listeners and one terminal lifecycle: the
// Duplex closes after both sides are done, and destroying it destroys both.
type Duplex[W, R any] struct {
	*Readable[R]
	*Writable[W]

	c *core
}

// NewDuplex creates a Duplex from cfg.
func NewDuplex[W, R any](cfg DuplexConfig[W, R]) (*Duplex[W, R], error) {
	if err := requireWrite(cfg.Write); err != nil {
		return nil, err
	}
	rsz, err := resolveSizing[R]("stream", "Readable", cfg.ReadableMode, cfg.ReadableHighWaterMark, cfg.ReadableLowWaterMark)
	if err != nil {
		return nil, err
	}
	wsz, err := resolveSizing[W]("stream", "Writable", cfg.WritableMode, cfg.WritableHighWaterMark, 0)
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
	d := &Duplex[W, R]{
		Readable: newReadableSide(c, rsz, cfg.Produce, cfg.Backpressure),
		Writable: newWritableSide(c, wsz, cfg.Write, cfg.Final),
		c:        c,
	}
	d.Readable.self = d
	d.Writable.self = d

	if cfg.EndTogether {
		d.Readable.onEnd = func() { _ = d.Writable.End() }
		d.Writable.onFinish = d.Readable.PushEnd
	}
	return d, nil
}

// ReadEnded reports whether the read side has received end of data.
func (d *Duplex[W, R]) ReadEnded() bool {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	return d.Readable.ended
}

// WriteEnded reports whether End has been called on the write side.
func (d *Duplex[W, R]) WriteEnded() bool {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	return d.Writable.ending
}

// HalfClosed returns the end flags of both sides.
func (d *Duplex[W, R]) HalfClosed() (readEnded, writeEnded bool) {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	return d.Readable.ended, d.Writable.ending
}

// On registers fn for ev. A data listener starts the flow of the read side.
func (d *Duplex[W, R]) On(ev events.Event, fn events.Listener, opts ...events.ListenerOption) events.ListenerID {
	return d.Readable.On(ev, fn, opts...)
}

// Once registers fn for the next emission of ev.
func (d *Duplex[W, R]) Once(ev events.Event, fn events.Listener, opts ...events.ListenerOption) events.ListenerID {
	return d.Readable.Once(ev, fn, opts...)
}

// Off removes a listener registered with On or Once.
func (d *Duplex[W, R]) Off(ev events.Event, id events.ListenerID) bool {
	return d.c.emitter.Off(ev, id)
}

// OnError registers fn for the error event.
func (d *Duplex[W, R]) OnError(fn func(err error)) events.ListenerID {
	return d.c.on(events.Error, onError(fn), false)
}

// OnClose registers fn for the close event.
func (d *Duplex[W, R]) OnClose(fn func()) events.ListenerID {
	return d.c.on(events.Close, onSignal(fn), false)
}

// ListenerCount returns the number of listeners for ev.
func (d *Duplex[W, R]) ListenerCount(ev events.Event) int {
	return d.c.emitter.ListenerCount(ev)
}

// ExternalListenerCount returns the number of listeners for ev not owned by pipe links.
func (d *Duplex[W, R]) ExternalListenerCount(ev events.Event) int {
	return d.c.emitter.ExternalListenerCount(ev)
}

// State returns the combined state: Ended once both sides ended, otherwise
// the read side's flow state, Paused while the write side awaits drain, or
// Flowing while it consumes.
func (d *Duplex[W, R]) State() State {
	d.c.mu.Lock()
	defer d.c.mu.Unlock()
	if s, ok := d.c.terminalStateLocked(); ok {
		return s
	}
	r, w := d.Readable.stateLocked(), d.Writable.stateLocked()
	switch {
	case r == Ended && w == Ended:
		return Ended
	case r == Flowing:
		return Flowing
	case r == Paused || w == Paused:
		return Paused
	case w == Flowing:
		return Flowing
	default:
		return Idle
	}
}

// Destroy terminates both sides.
func (d *Duplex[W, R]) Destroy(err error) {
	d.c.destroy(err)
}

// Destroyed reports whether Destroy has been called.
func (d *Duplex[W, R]) Destroyed() bool {
	return d.c.destroyedNow()
}

// Err returns the terminal error, if any.
func (d *Duplex[W, R]) Err() error {
	return d.c.storedErr()
}

// Name returns the configured stream name.
func (d *Duplex[W, R]) Name() string {
	return d.c.name
}

func (d *Duplex[W, R]) awaitDone(report func(error)) func() {
	return d.c.await(true, true, report)
}
