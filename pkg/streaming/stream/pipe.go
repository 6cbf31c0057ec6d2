package stream

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vnykmshr/streamcore/pkg/events"
)

// BackpressurePolicy selects when a source piped to several destinations
// pauses.
type BackpressurePolicy int

const (
	// PauseOnAny pauses the source as soon as one destination is full and
	// resumes it when every destination has drained.
	PauseOnAny BackpressurePolicy = iota

	// PauseOnAll keeps the source flowing until every destination is full.
	// Destinations that are full meanwhile buffer past their high-water mark.
	PauseOnAll
)

// String returns the name of the policy.
func (p BackpressurePolicy) String() string {
	switch p {
	case PauseOnAll:
		return "pause-on-all"
	default:
		return "pause-on-any"
	}
}

// Destination is the writable side of a pipe: a Writable, Duplex or Transform.
type Destination[T any] interface {
	Write(chunk T) (bool, error)
	End(final ...T) error
	writableSide() *Writable[T]
}

// Origin is the readable side of a pipe: a Readable, Duplex or Transform.
type Origin[T any] interface {
	readableSide() *Readable[T]
}

// Link describes an active pipe.
type Link interface {
	// Source returns the stream that feeds the link.
	Source() any

	// Destination returns the stream the link writes to.
	Destination() any

	// Upstream returns the link that fed the source when the link was
	// created, or nil when the source was not itself a pipe destination.
	Upstream() Link

	// PropagatesEnd reports whether the source's end ends the destination.
	PropagatesEnd() bool
}

type pipeOptions struct {
	end bool
}

// PipeOption configures a pipe.
type PipeOption func(*pipeOptions)

// WithEnd controls whether the source's end calls End on the destination.
// Default: true.
func WithEnd(end bool) PipeOption {
	return func(o *pipeOptions) {
		o.end = end
	}
}

type boundRef struct {
	c *core
	listenerRef
}

type link[T any] struct {
	src      *Readable[T]
	dst      Destination[T]
	w        *Writable[T]
	end      bool
	upstream Link

	// awaiting is guarded by src.c.mu.
	awaiting bool

	mu   sync.Mutex
	refs []boundRef
	torn atomic.Bool
}

func (l *link[T]) Source() any         { return l.src.self }
func (l *link[T]) Destination() any    { return l.w.self }
func (l *link[T]) Upstream() Link      { return l.upstream }
func (l *link[T]) PropagatesEnd() bool { return l.end }

func (l *link[T]) listen(c *core, ev events.Event, fn events.Listener) {
	id := c.emitter.On(ev, fn, events.Internal())
	l.mu.Lock()
	l.refs = append(l.refs, boundRef{c: c, listenerRef: listenerRef{ev: ev, id: id}})
	l.mu.Unlock()
}

// Pipe forwards every chunk of r to dst with back-pressure and returns dst.
//
// While dst reports it is full, r is paused; it resumes when dst emits
// drain. When r ends, dst is ended unless WithEnd(false) is given. An error
// on either side detaches the pipe; if the failing stream has no error
// listener of its own, the other side is destroyed with the same error.
//
// A source with a producer starts flowing as soon as it is piped, so a
// destination piped later only sees the chunks emitted after it was
// attached. Use PipeAll to attach several destinations from the first chunk.
// Piping into a source that is waiting for another destination to drain
// does not resume it.
func (r *Readable[T]) Pipe(dst Destination[T], opts ...PipeOption) Destination[T] {
	r.PipeAll([]Destination[T]{dst}, opts...)
	return dst
}

// PipeAll pipes r to every destination in dsts and only then starts the
// flow, so each destination receives the whole stream.
func (r *Readable[T]) PipeAll(dsts []Destination[T], opts ...PipeOption) {
	o := pipeOptions{end: true}
	for _, opt := range opts {
		opt(&o)
	}

	attached := false
	for _, dst := range dsts {
		if r.attach(dst, o) {
			attached = true
		}
	}
	if !attached {
		return
	}

	r.c.mu.Lock()
	resume := !r.c.destroyed && r.mode != flowOn && r.canFlowLocked()
	r.c.mu.Unlock()
	if resume {
		r.Resume()
	}
}

// attach wires a link from r to dst and reports whether it is live.
func (r *Readable[T]) attach(dst Destination[T], o pipeOptions) bool {
	w := dst.writableSide()
	l := &link[T]{src: r, dst: dst, w: w, end: o.end}

	r.c.mu.Lock()
	ended, destroyed := r.c.endEmitted, r.c.destroyed
	if !ended && !destroyed {
		l.upstream = r.c.incoming
		r.links = append(r.links, l)
	}
	r.c.mu.Unlock()

	if ended || destroyed {
		r.logPipe("pipe from a finished stream", w.c)
		if ended && l.end {
			_ = dst.End()
		}
		return false
	}

	w.c.mu.Lock()
	w.c.incoming = l
	w.c.mu.Unlock()

	l.listen(r.c, events.Data, func(p any) {
		chunk, _ := p.(T)
		l.onData(chunk)
	})
	l.listen(r.c, events.End, onSignal(l.onEnd))
	l.listen(r.c, events.Error, onError(l.onSourceError))
	l.listen(r.c, events.Close, onSignal(l.teardown))
	l.listen(w.c, events.Drain, onSignal(func() { r.releaseDrain(l) }))
	l.listen(w.c, events.Error, onError(l.onDestinationError))
	l.listen(w.c, events.Close, onSignal(l.teardown))
	l.listen(w.c, events.Finish, onSignal(l.teardown))

	w.c.emit(events.Pipe, r.self)
	r.logPipe("pipe", w.c)
	return true
}

// Pipe is the generic form of (*Readable).Pipe. It returns dst with its
// concrete type, so stages chain: Pipe(Pipe(src, t), sink).
func Pipe[T any, D Destination[T]](src Origin[T], dst D, opts ...PipeOption) D {
	src.readableSide().Pipe(dst, opts...)
	return dst
}

// Unpipe detaches the given destinations, or every destination when none
// is given. A source left without destinations and data listeners pauses.
func (r *Readable[T]) Unpipe(dsts ...Destination[T]) {
	r.c.mu.Lock()
	var targets []*link[T]
	for _, l := range r.links {
		if len(dsts) == 0 {
			targets = append(targets, l)
			continue
		}
		for _, d := range dsts {
			if d.writableSide() == l.w {
				targets = append(targets, l)
				break
			}
		}
	}
	r.c.mu.Unlock()

	for _, l := range targets {
		l.teardown()
	}
}

// Links returns the active pipes fed by r.
func (r *Readable[T]) Links() []Link {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	out := make([]Link, len(r.links))
	for i, l := range r.links {
		out[i] = l
	}
	return out
}

func (l *link[T]) onData(chunk T) {
	ok, err := l.dst.Write(chunk)
	if err != nil {
		l.src.c.logger.Warn("pipe destination rejected chunk",
			zap.String("destination", l.w.c.name), zap.Error(err))
		l.teardown()
		l.src.c.destroy(err)
		return
	}
	if !ok {
		l.src.awaitDrain(l)
	}
}

func (l *link[T]) onEnd() {
	if l.end {
		if err := l.dst.End(); err != nil {
			l.src.c.logger.Debug("pipe could not end destination",
				zap.String("destination", l.w.c.name), zap.Error(err))
		}
	}
	l.teardown()
}

func (l *link[T]) onSourceError(err error) {
	l.teardown()
	if l.src.c.emitter.ExternalListenerCount(events.Error) > 0 {
		return
	}
	l.src.c.logger.Debug("forwarding error downstream", zap.String("destination", l.w.c.name))
	l.w.c.destroy(err)
}

func (l *link[T]) onDestinationError(err error) {
	l.teardown()
	if l.w.c.emitter.ExternalListenerCount(events.Error) > 0 {
		return
	}
	l.src.c.logger.Debug("forwarding error upstream", zap.String("destination", l.w.c.name))
	l.src.c.destroy(err)
}

// teardown detaches the link. It runs at most once.
func (l *link[T]) teardown() {
	if !l.torn.CompareAndSwap(false, true) {
		return
	}

	l.mu.Lock()
	refs := l.refs
	l.refs = nil
	l.mu.Unlock()
	for _, ref := range refs {
		ref.c.emitter.Off(ref.ev, ref.id)
	}

	r := l.src
	r.c.mu.Lock()
	for i, other := range r.links {
		if other == l {
			r.links = append(r.links[:i], r.links[i+1:]...)
			break
		}
	}
	if l.awaiting {
		l.awaiting = false
		r.awaitingDrain--
	}
	pause := len(r.links) == 0 && r.mode == flowOn && !r.c.endEmitted && !r.c.destroyed &&
		r.c.emitter.ExternalListenerCount(events.Data) == 0
	resume := len(r.links) > 0 && r.mode == flowOff && r.canFlowLocked()
	r.c.mu.Unlock()

	switch {
	case pause:
		r.Pause()
	case resume:
		r.Resume()
	}
	l.w.c.emit(events.Unpipe, r.self)
	r.logPipe("unpipe", l.w.c)
}

// awaitDrain marks l as waiting for drain and pauses r per its policy.
func (r *Readable[T]) awaitDrain(l *link[T]) {
	r.c.mu.Lock()
	if l.awaiting || l.torn.Load() {
		r.c.mu.Unlock()
		return
	}
	l.awaiting = true
	r.awaitingDrain++
	pause := !r.canFlowLocked()
	r.c.mu.Unlock()

	if pause {
		r.Pause()
	}
	// drain may have fired between the write and the mark.
	if !l.w.NeedDrain() {
		r.releaseDrain(l)
	}
}

func (r *Readable[T]) releaseDrain(l *link[T]) {
	r.c.mu.Lock()
	if !l.awaiting {
		r.c.mu.Unlock()
		return
	}
	l.awaiting = false
	r.awaitingDrain--
	resume := r.mode == flowOff && r.canFlowLocked()
	r.c.mu.Unlock()

	if resume {
		r.Resume()
	}
}

func (r *Readable[T]) canFlowLocked() bool {
	if r.policy == PauseOnAll {
		return r.awaitingDrain < len(r.links)
	}
	return r.awaitingDrain == 0
}

func (r *Readable[T]) acceptsDestination(dst any) bool {
	_, ok := dst.(Destination[T])
	return ok
}

func (r *Readable[T]) pipeTo(dst any) {
	r.Pipe(dst.(Destination[T]))
}
