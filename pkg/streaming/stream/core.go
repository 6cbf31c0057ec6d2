package stream

import (
	"sync"

	"go.uber.org/zap"

	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/events"
	"github.com/vnykmshr/streamcore/pkg/metrics"
)

// serial runs tasks one at a time in FIFO order. The goroutine that finds it
// idle runs queued tasks until none remain; other callers only enqueue. A
// task may enqueue further tasks but must never wait for one.
type serial struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

func (s *serial) run(task func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			panic(r)
		}
	}()

	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		next := s.tasks[0]
		s.tasks[0] = nil
		s.tasks = s.tasks[1:]
		s.mu.Unlock()

		next()
	}
}

// core is the lifecycle shared by the readable and writable sides of one
// stream. A Duplex has one core for both sides, so both see the same
// listeners, the same terminal error and the same close.
type core struct {
	mu sync.Mutex

	name    string
	logger  *zap.Logger
	metrics *metrics.Registry
	emitter *events.Emitter
	exec    serial

	destroyed    bool
	err          error
	closeEmitted bool
	generation   uint64

	autoDestroy bool
	hasReadable bool
	hasWritable bool
	endEmitted  bool
	finished    bool

	// incoming is the most recent pipe link writing into this stream.
	incoming Link

	discard   []func()
	onDestroy func(error)
}

type coreConfig struct {
	name               string
	logger             *zap.Logger
	metrics            *metrics.Registry
	maxListeners       int
	disableAutoDestroy bool
	onDestroy          func(error)
}

func newCore(cfg coreConfig) *core {
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.name
	if name == "" {
		name = "stream"
	}
	logger = logger.With(zap.String("stream", name))

	opts := []events.Option{events.WithLogger(logger)}
	if cfg.maxListeners != 0 {
		opts = append(opts, events.WithMaxListeners(cfg.maxListeners))
	}

	return &core{
		name:        name,
		logger:      logger,
		metrics:     cfg.metrics,
		emitter:     events.New(opts...),
		autoDestroy: !cfg.disableAutoDestroy,
		onDestroy:   cfg.onDestroy,
	}
}

// emit delivers ev on the stream's executor.
func (c *core) emit(ev events.Event, payload any) {
	c.exec.run(func() { c.emitter.Emit(ev, payload) })
}

// do runs fn on the stream's executor.
func (c *core) do(fn func()) {
	c.exec.run(fn)
}

// destroy moves the stream to its terminal state. It discards buffered
// chunks and invalidates pending callbacks synchronously, then emits error
// (when err is non-nil) and close, and detaches every listener.
func (c *core) destroy(err error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.generation++
	if err != nil && c.err == nil {
		c.err = err
	}
	err = c.err
	for _, d := range c.discard {
		d()
	}
	hook := c.onDestroy
	c.mu.Unlock()

	if err != nil {
		kind := "unknown"
		if k, ok := scerrors.KindOf(err); ok {
			kind = k.String()
		}
		c.metrics.Error(c.name, kind)
		c.logger.Debug("stream destroyed", zap.Error(err), zap.String("kind", kind))
	} else {
		c.logger.Debug("stream destroyed")
	}

	c.do(func() {
		if hook != nil {
			hook(err)
		}
		if err != nil {
			c.emitter.Emit(events.Error, err)
		}
		c.mu.Lock()
		c.closeEmitted = true
		c.mu.Unlock()
		c.emitter.Emit(events.Close, nil)
		c.emitter.RemoveAll()
	})
}

// maybeAutoDestroy closes the stream once every side it has is done.
func (c *core) maybeAutoDestroy() {
	c.mu.Lock()
	done := c.autoDestroy && !c.destroyed &&
		(!c.hasReadable || c.endEmitted) &&
		(!c.hasWritable || c.finished)
	c.mu.Unlock()
	if done {
		c.destroy(nil)
	}
}

// terminalStateLocked returns the terminal state, if any.
func (c *core) terminalStateLocked() (State, bool) {
	if !c.destroyed {
		return 0, false
	}
	if c.err != nil && !c.closeEmitted {
		return Errored, true
	}
	return Closed, true
}

// unusableLocked returns the protocol violation for an operation on a
// terminated stream, or nil when the stream is usable.
func (c *core) unusableLocked(op string) error {
	if c.err != nil {
		return scerrors.NewProtocolViolation(c.name, op, c.err)
	}
	if c.destroyed {
		return scerrors.NewProtocolViolation(c.name, op, scerrors.ErrDestroyed)
	}
	return nil
}

func (c *core) destroyedNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *core) storedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *core) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *core) on(ev events.Event, fn events.Listener, once bool, opts ...events.ListenerOption) events.ListenerID {
	if once {
		return c.emitter.Once(ev, fn, opts...)
	}
	return c.emitter.On(ev, fn, opts...)
}

func onError(fn func(error)) events.Listener {
	return func(p any) {
		err, _ := p.(error)
		fn(err)
	}
}

func onSignal(fn func()) events.Listener {
	return func(any) { fn() }
}

type listenerRef struct {
	ev events.Event
	id events.ListenerID
}

// await reports exactly once when the stream completes: nil after end
// (needEnd) and finish (needFinish), the terminal error on failure, or
// ErrPrematureClose when close comes first. The returned func detaches the
// listeners.
func (c *core) await(needEnd, needFinish bool, report func(error)) func() {
	var once sync.Once
	fire := func(err error) { once.Do(func() { report(err) }) }

	check := func() {
		c.mu.Lock()
		complete := (!needEnd || c.endEmitted) && (!needFinish || c.finished)
		err := c.err
		closed := c.closeEmitted
		c.mu.Unlock()

		switch {
		case err != nil:
			fire(err)
		case complete:
			fire(nil)
		case closed:
			fire(scerrors.ErrPrematureClose)
		}
	}

	refs := []listenerRef{
		{events.Error, c.emitter.On(events.Error, onError(fire))},
		{events.Close, c.emitter.On(events.Close, onSignal(check))},
	}
	if needEnd {
		refs = append(refs, listenerRef{events.End, c.emitter.On(events.End, onSignal(check))})
	}
	if needFinish {
		refs = append(refs, listenerRef{events.Finish, c.emitter.On(events.Finish, onSignal(check))})
	}
	check()

	return func() {
		for _, ref := range refs {
			c.emitter.Off(ref.ev, ref.id)
		}
	}
}
