package stream

import (
	"context"
	"fmt"

	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/events"
)

type stage interface {
	On(ev events.Event, fn events.Listener, opts ...events.ListenerOption) events.ListenerID
	Off(ev events.Event, id events.ListenerID) bool
	Destroy(err error)
	Destroyed() bool
}

type pipeSource interface {
	acceptsDestination(dst any) bool
	pipeTo(dst any)
}

type finisher interface {
	awaitFinish(report func(error)) func()
}

type completer interface {
	awaitDone(report func(error)) func()
}

// Pipeline pipes stages into each other in order and waits until the last
// stage has finished. Every stage but the last must be readable, every stage
// but the first writable, and adjacent chunk types must match.
//
// The first error from any stage, or the cancellation of ctx, destroys all
// stages and is returned. Stages already finished are left alone.
func Pipeline(ctx context.Context, stages ...any) error {
	if len(stages) < 2 {
		return scerrors.NewValidationError("stream", "stages", len(stages), "must have at least 2 stages").
			WithHint("pipe a source into a sink")
	}

	all := make([]stage, len(stages))
	for i, s := range stages {
		st, ok := s.(stage)
		if !ok {
			return fmt.Errorf("%w: stage %d (%T) is not a stream", scerrors.ErrStageMismatch, i, s)
		}
		all[i] = st
		if i == len(stages)-1 {
			break
		}
		src, ok := s.(pipeSource)
		if !ok {
			return fmt.Errorf("%w: stage %d (%T) is not readable", scerrors.ErrStageMismatch, i, s)
		}
		if !src.acceptsDestination(stages[i+1]) {
			return fmt.Errorf("%w: stage %d (%T) cannot pipe into stage %d (%T)",
				scerrors.ErrStageMismatch, i, s, i+1, stages[i+1])
		}
	}
	last, ok := stages[len(stages)-1].(finisher)
	if !ok {
		return fmt.Errorf("%w: last stage (%T) is not writable", scerrors.ErrStageMismatch, stages[len(stages)-1])
	}

	done := make(chan error, 1)
	report := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	ids := make([]events.ListenerID, len(all))
	for i, st := range all {
		ids[i] = st.On(events.Error, onError(report))
	}
	cancel := last.awaitFinish(report)
	defer func() {
		cancel()
		for i, st := range all {
			st.Off(events.Error, ids[i])
		}
	}()

	// Downstream first, so no stage produces before its consumer is attached.
	for i := len(stages) - 2; i >= 0; i-- {
		stages[i].(pipeSource).pipeTo(stages[i+1])
	}

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		for _, st := range all {
			st.Destroy(nil)
		}
	}
	return err
}

// Finished blocks until s is done: a Readable after end, a Writable after
// finish, a Duplex or Transform after both. It returns the stream's error,
// ErrPrematureClose if it closed first, or ctx's error.
func Finished(ctx context.Context, s any) error {
	c, ok := s.(completer)
	if !ok {
		return fmt.Errorf("%w: %T is not a stream", scerrors.ErrStageMismatch, s)
	}

	done := make(chan error, 1)
	cancel := c.awaitDone(func(err error) { done <- err })
	defer cancel()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
