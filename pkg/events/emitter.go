package events

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Event names a signal a stream can emit.
type Event string

// Signals emitted by streams. Names and firing order are part of the public contract.
const (
	Data     Event = "data"
	End      Event = "end"
	Error    Event = "error"
	Close    Event = "close"
	Drain    Event = "drain"
	Finish   Event = "finish"
	Pipe     Event = "pipe"
	Unpipe   Event = "unpipe"
	Readable Event = "readable"
	Pause    Event = "pause"
	Resume   Event = "resume"
)

// DefaultMaxListeners is the per-event listener count above which a leak warning is logged.
const DefaultMaxListeners = 10

// Listener receives the payload of an emitted event.
type Listener func(payload any)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

// UnhandledError is the panic value raised when an error event has no listener.
type UnhandledError struct {
	Err error
}

// Error implements the error interface.
func (e *UnhandledError) Error() string {
	return "unhandled error event: " + e.Err.Error()
}

// Unwrap returns the unobserved error.
func (e *UnhandledError) Unwrap() error {
	return e.Err
}

type handle struct {
	id       ListenerID
	fn       Listener
	once     bool
	internal bool
	fired    bool
}

// ListenerOption configures a listener at registration time.
type ListenerOption func(*handle)

// Internal marks a listener as owned by library plumbing (for example a pipe
// link). Internal listeners receive events like any other listener but are
// not counted by ExternalListenerCount.
func Internal() ListenerOption {
	return func(h *handle) { h.internal = true }
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets the logger used for listener leak warnings.
func WithLogger(l *zap.Logger) Option {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxListeners sets the leak warning threshold. Zero disables the warning.
func WithMaxListeners(n int) Option {
	return func(e *Emitter) { e.maxListeners = n }
}

// Emitter is an ordered, per-event observer registry.
//
// Emit delivers to a snapshot of the listeners registered when it starts, so
// listeners added or removed during dispatch only affect later emits. A Once
// listener is delivered at most one time, including under re-entrant emits.
// Emitter is safe for concurrent use; listeners are invoked without any lock held.
type Emitter struct {
	mu           sync.Mutex
	listeners    map[Event][]*handle
	nextID       ListenerID
	maxListeners int
	warned       map[Event]bool
	logger       *zap.Logger
}

// New creates an empty Emitter.
func New(opts ...Option) *Emitter {
	e := &Emitter{
		listeners:    make(map[Event][]*handle),
		maxListeners: DefaultMaxListeners,
		warned:       make(map[Event]bool),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// On registers fn for every emission of ev.
func (e *Emitter) On(ev Event, fn Listener, opts ...ListenerOption) ListenerID {
	return e.add(ev, fn, false, opts)
}

// Once registers fn for the next emission of ev only.
func (e *Emitter) Once(ev Event, fn Listener, opts ...ListenerOption) ListenerID {
	return e.add(ev, fn, true, opts)
}

func (e *Emitter) add(ev Event, fn Listener, once bool, opts []ListenerOption) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	h := &handle{id: e.nextID, fn: fn, once: once}
	for _, opt := range opts {
		opt(h)
	}
	e.listeners[ev] = append(e.listeners[ev], h)

	if n := len(e.listeners[ev]); e.maxListeners > 0 && n > e.maxListeners && !e.warned[ev] {
		e.warned[ev] = true
		e.logger.Warn("possible listener leak",
			zap.String("event", string(ev)),
			zap.Int("listeners", n),
			zap.Int("max_listeners", e.maxListeners))
	}
	return h.id
}

// Off removes the listener with the given id. It reports whether one was removed.
// Removing a listener during an emit does not prevent its delivery for that emit.
func (e *Emitter) Off(ev Event, id ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.listeners[ev]
	for i, h := range list {
		if h.id == id {
			e.listeners[ev] = append(list[:i:i], list[i+1:]...)
			if len(e.listeners[ev]) == 0 {
				delete(e.listeners, ev)
			}
			return true
		}
	}
	return false
}

// RemoveAll removes every listener of the given events, or of all events when none are given.
func (e *Emitter) RemoveAll(evs ...Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(evs) == 0 {
		e.listeners = make(map[Event][]*handle)
		return
	}
	for _, ev := range evs {
		delete(e.listeners, ev)
	}
}

// ListenerCount returns the number of listeners registered for ev.
func (e *Emitter) ListenerCount(ev Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[ev])
}

// ExternalListenerCount returns the number of non-internal listeners registered for ev.
func (e *Emitter) ExternalListenerCount(ev Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, h := range e.listeners[ev] {
		if !h.internal {
			n++
		}
	}
	return n
}

// SetMaxListeners changes the leak warning threshold.
func (e *Emitter) SetMaxListeners(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxListeners = n
}

// Emit delivers payload to the listeners of ev in registration order and
// reports whether there were any.
//
// Emitting Error with no listener panics with *UnhandledError: an error
// nobody observes is a defect, not something to drop.
func (e *Emitter) Emit(ev Event, payload any) bool {
	e.mu.Lock()
	list := e.listeners[ev]
	if len(list) == 0 {
		e.mu.Unlock()
		if ev == Error {
			panic(&UnhandledError{Err: asError(payload)})
		}
		return false
	}

	snapshot := make([]*handle, 0, len(list))
	for _, h := range list {
		if h.once {
			if h.fired {
				continue
			}
			h.fired = true
		}
		snapshot = append(snapshot, h)
	}
	e.removeFiredLocked(ev)
	e.mu.Unlock()

	for _, h := range snapshot {
		h.fn(payload)
	}
	return true
}

func (e *Emitter) removeFiredLocked(ev Event) {
	list := e.listeners[ev]
	kept := list[:0:0]
	for _, h := range list {
		if !(h.once && h.fired) {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(e.listeners, ev)
		return
	}
	e.listeners[ev] = kept
}

func asError(payload any) error {
	if err, ok := payload.(error); ok && err != nil {
		return err
	}
	return fmt.Errorf("error event with payload %v", payload)
}
