package stream

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/vnykmshr/streamcore/internal/testutil"
	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
)

func TestNewWritableValidation(t *testing.T) {
	_, err := NewWritable(WritableConfig[int]{})
	if !scerrors.IsValidationError(err) {
		t.Fatalf("expected validation error for nil Write, got %v", err)
	}

	_, err = NewWritable(WritableConfig[int]{Mode: ModeBytes, Write: syncWrite[int]})
	if !scerrors.IsValidationError(err) {
		t.Fatalf("expected validation error for byte mode, got %v", err)
	}
}

func TestWritableHighWaterMarkFiveWrites(t *testing.T) {
	w, sink := newManualWritable[int](t, 3)

	completed := 0
	drains := 0
	drainedAt := 0
	w.OnDrain(func() {
		drains++
		drainedAt = completed
	})

	var oks []bool
	for i := 1; i <= 5; i++ {
		ok, err := w.Write(i)
		testutil.AssertNoError(t, err)
		oks = append(oks, ok)
	}

	testutil.AssertSliceEqual(t, oks, []bool{true, true, false, false, false})
	testutil.AssertEqual(t, w.NeedDrain(), true)
	testutil.AssertEqual(t, w.State(), Paused)
	testutil.AssertEqual(t, w.WritableLength(), 5)

	for sink.pending() > 0 {
		completed++
		sink.completeNext(nil)
	}

	testutil.AssertEqual(t, completed, 5)
	testutil.AssertEqual(t, drains, 1)
	testutil.AssertEqual(t, drainedAt, 3)
	testutil.AssertSliceEqual(t, sink.written(), []int{1, 2, 3, 4, 5})
	testutil.AssertEqual(t, w.NeedDrain(), false)
}

func TestWritableDrainCountEqualsCrossings(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 25; trial++ {
		hwm := 1 + rng.Intn(4)
		w, sink := newManualWritable[int](t, hwm)

		drains := 0
		w.OnDrain(func() { drains++ })

		outstanding, crossings := 0, 0
		needDrain := false
		for step := 0; step < 200; step++ {
			if rng.Intn(2) == 0 {
				ok, err := w.Write(step)
				testutil.AssertNoError(t, err)
				outstanding++
				testutil.AssertEqual(t, ok, outstanding < hwm)
				if !ok {
					needDrain = true
				}
				continue
			}
			if sink.completeNext(nil) {
				outstanding--
				if needDrain && outstanding < hwm {
					crossings++
					needDrain = false
				}
			}
		}

		if drains != crossings {
			t.Fatalf("trial %d (hwm=%d): %d drains, want %d", trial, hwm, drains, crossings)
		}
	}
}

func TestWritableDestroyDuringInFlightWrite(t *testing.T) {
	w, sink := newManualWritable[int](t, 0)

	cb := testutil.NewCallbackTracker()
	_, err := w.WriteCallback(1, func(err error) { cb.Mark(err) })
	testutil.AssertNoError(t, err)
	_, err = w.Write(2)
	testutil.AssertNoError(t, err)

	closed := testutil.NewCallbackTracker()
	w.OnClose(func() { closed.Mark() })

	w.Destroy(nil)
	testutil.AssertEqual(t, w.State(), Closed)
	testutil.AssertEqual(t, w.WritableLength(), 0)
	closed.AssertCallCount(t, 1)

	// A late completion is ignored.
	sink.completeNext(nil)
	cb.AssertNotCalled(t)
	testutil.AssertSliceEqual(t, sink.written(), []int{1})
	testutil.AssertEqual(t, sink.pending(), 0)

	_, err = w.Write(3)
	if !errors.Is(err, scerrors.ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}
}

func TestWritableWriteAfterEnd(t *testing.T) {
	w, err := NewWritable(WritableConfig[int]{Write: syncWrite[int], DisableAutoDestroy: true})
	testutil.AssertNoError(t, err)

	_, err = w.Write(1)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, w.End())
	testutil.AssertNoError(t, w.End())

	_, err = w.Write(2)
	if !errors.Is(err, scerrors.ErrWriteAfterEnd) || !scerrors.IsProtocolViolation(err) {
		t.Fatalf("expected write-after-end protocol violation, got %v", err)
	}
	err = w.End(3)
	if !errors.Is(err, scerrors.ErrWriteAfterEnd) {
		t.Fatalf("expected ErrWriteAfterEnd, got %v", err)
	}

	// The violation does not destroy the stream.
	testutil.AssertEqual(t, w.Destroyed(), false)
	testutil.AssertEqual(t, w.State(), Ended)
	testutil.AssertEqual(t, w.WritableFinished(), true)
	testutil.AssertEqual(t, w.WritableEnded(), true)
	w.Destroy(nil)
}

func TestWritableFinalAndEventOrder(t *testing.T) {
	rec := testutil.NewRecorder()
	w, err := NewWritable(WritableConfig[string]{
		Write: func(s string, done func(error)) {
			rec.Add("write", s)
			done(nil)
		},
		Final: func(done func(error)) {
			rec.Add("final")
			done(nil)
		},
	})
	testutil.AssertNoError(t, err)
	w.OnFinish(func() { rec.Add("finish") })
	w.OnClose(func() { rec.Add("close") })

	_, err = w.Write("a")
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, w.End("b"))

	testutil.AssertEqual(t, rec.String(), "write:a write:b final finish close")
	testutil.AssertEqual(t, w.State(), Closed)
	testutil.AssertNoError(t, w.End())
}

func TestWritableConsumeError(t *testing.T) {
	boom := errors.New("disk full")
	w, err := NewWritable(WritableConfig[int]{
		Write: func(n int, done func(error)) {
			if n == 2 {
				done(boom)
				return
			}
			done(nil)
		},
	})
	testutil.AssertNoError(t, err)

	var got error
	w.OnError(func(err error) { got = err })
	finished := testutil.NewCallbackTracker()
	w.OnFinish(func() { finished.Mark() })

	_, err = w.Write(1)
	testutil.AssertNoError(t, err)

	cb := testutil.NewCallbackTracker()
	_, err = w.WriteCallback(2, func(err error) { cb.Mark(err) })
	testutil.AssertNoError(t, err)

	cb.AssertCallCount(t, 1)
	if cbErr, _ := cb.Value().(error); !errors.Is(cbErr, boom) {
		t.Fatalf("callback got %v, want %v", cb.Value(), boom)
	}
	if !errors.Is(got, boom) {
		t.Fatalf("error event got %v, want %v", got, boom)
	}
	kind, _ := scerrors.KindOf(got)
	testutil.AssertEqual(t, kind, scerrors.KindConsumption)
	finished.AssertNotCalled(t)

	_, err = w.Write(3)
	if !errors.Is(err, boom) || !scerrors.IsProtocolViolation(err) {
		t.Fatalf("expected protocol violation wrapping boom, got %v", err)
	}
}

func TestWritableMultipleCallback(t *testing.T) {
	w, err := NewWritable(WritableConfig[int]{
		Write: func(_ int, done func(error)) {
			done(nil)
			done(nil)
		},
	})
	testutil.AssertNoError(t, err)

	var got error
	w.OnError(func(err error) { got = err })

	_, err = w.Write(1)
	testutil.AssertNoError(t, err)

	if !errors.Is(got, scerrors.ErrMultipleCallback) || !scerrors.IsProtocolViolation(got) {
		t.Fatalf("expected multiple-callback protocol violation, got %v", got)
	}
	testutil.AssertEqual(t, w.State(), Closed)
}

func TestWritableFinalError(t *testing.T) {
	boom := errors.New("flush failed")
	w, err := NewWritable(WritableConfig[int]{
		Write: syncWrite[int],
		Final: func(done func(error)) { done(boom) },
	})
	testutil.AssertNoError(t, err)

	var got error
	w.OnError(func(err error) { got = err })
	finished := testutil.NewCallbackTracker()
	w.OnFinish(func() { finished.Mark() })

	testutil.AssertNoError(t, w.End(1))

	if !errors.Is(got, boom) {
		t.Fatalf("expected %v, got %v", boom, got)
	}
	var se *scerrors.StreamError
	if !errors.As(got, &se) {
		t.Fatalf("expected *StreamError, got %T", got)
	}
	testutil.AssertEqual(t, se.Op, "final")
	testutil.AssertEqual(t, se.Kind, scerrors.KindConsumption)
	finished.AssertNotCalled(t)
}

func TestWritableByteMode(t *testing.T) {
	sink := &manualSink[[]byte]{}
	w, err := NewWritable(WritableConfig[[]byte]{HighWaterMark: 4, Write: sink.write})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, w.WritableMode(), ModeBytes)

	ok, _ := w.Write([]byte("ab"))
	testutil.AssertEqual(t, ok, true)
	ok, _ = w.Write([]byte("cd"))
	testutil.AssertEqual(t, ok, false)
	testutil.AssertEqual(t, w.WritableLength(), 4)

	drained := testutil.NewCallbackTracker()
	w.OnDrain(func() { drained.Mark() })
	sink.completeNext(nil)
	drained.AssertCallCount(t, 1)
	sink.completeAll()
	testutil.AssertEqual(t, w.WritableLength(), 0)
}
