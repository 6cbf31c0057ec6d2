package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/streamcore/internal/testutil"
	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/events"
)

func TestPipeErrorAfterTwoChunks(t *testing.T) {
	boom := errors.New("upstream broke")
	n := 0
	src, err := NewReadable(ReadableConfig[int]{
		Produce: func(r *Readable[int], _ int) {
			n++
			if n == 3 {
				r.Fail(boom)
				return
			}
			r.Push(n)
		},
	})
	testutil.AssertNoError(t, err)

	dst := NewCollector[int]()
	var got error
	dst.OnError(func(err error) { got = err })
	finished := testutil.NewCallbackTracker()
	dst.OnFinish(func() { finished.Mark() })

	src.Pipe(dst)

	testutil.AssertSliceEqual(t, dst.Items(), []int{1, 2})
	if !errors.Is(got, boom) {
		t.Fatalf("destination error: expected %v, got %v", boom, got)
	}
	kind, _ := scerrors.KindOf(got)
	testutil.AssertEqual(t, kind, scerrors.KindProduction)
	finished.AssertNotCalled(t)
	testutil.AssertEqual(t, dst.Destroyed(), true)
	testutil.AssertEqual(t, src.State(), Closed)
}

func TestPipeDestinationErrorReachesSource(t *testing.T) {
	boom := errors.New("sink broke")
	src := FromSlice([]int{1, 2, 3})
	var got error
	src.OnError(func(err error) { got = err })

	dst := ForEach(func(int) error { return boom })
	src.Pipe(dst)

	if !errors.Is(got, boom) {
		t.Fatalf("source error: expected %v, got %v", boom, got)
	}
	testutil.AssertEqual(t, src.Destroyed(), true)
	testutil.AssertEqual(t, dst.Destroyed(), true)
}

func TestPipeAsyncSinkKeepsOrder(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	var mu sync.Mutex
	var got []int
	dst, err := NewWritable(WritableConfig[int]{
		HighWaterMark: 4,
		Write: func(n int, done func(error)) {
			go func() {
				mu.Lock()
				got = append(got, n)
				mu.Unlock()
				done(nil)
			}()
		},
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, Pipeline(ctx, FromSlice(seq(1, 200)), dst))

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertSliceEqual(t, got, seq(1, 200))
}

func TestPipeBackpressure(t *testing.T) {
	src := FromSlice(seq(1, 10))
	dst, sink := newManualWritable[int](t, 2)

	pauses := 0
	src.On(events.Pause, func(any) { pauses++ })

	src.Pipe(dst)

	testutil.AssertEqual(t, src.IsPaused(), true)
	testutil.AssertSliceEqual(t, sink.written(), []int{1})
	testutil.AssertEqual(t, dst.WritableLength(), 2)
	testutil.AssertEqual(t, src.ReadableLength(), 8)

	sink.completeAll()

	testutil.AssertSliceEqual(t, sink.written(), seq(1, 10))
	testutil.AssertEqual(t, dst.WritableFinished(), true)
	testutil.AssertEqual(t, src.State(), Closed)
	if pauses < 2 {
		t.Fatalf("expected the source to pause repeatedly, paused %d times", pauses)
	}
}

func TestPipeWithoutEnd(t *testing.T) {
	src := FromSlice([]int{1, 2})
	dst := NewCollector[int]()

	src.Pipe(dst, WithEnd(false))

	testutil.AssertSliceEqual(t, dst.Items(), []int{1, 2})
	testutil.AssertEqual(t, dst.WritableEnded(), false)
	testutil.AssertNoError(t, dst.End())
	testutil.AssertEqual(t, dst.WritableFinished(), true)
}

func TestPipeFromEndedSource(t *testing.T) {
	src := Empty[int]()
	_, _, err := src.Read(0)
	if err == nil {
		t.Fatal("expected end of stream")
	}

	dst := NewCollector[int]()
	src.Pipe(dst)
	testutil.AssertEqual(t, dst.WritableFinished(), true)
}

func TestPipeEventsAndUnpipe(t *testing.T) {
	src, err := NewReadable(ReadableConfig[int]{})
	testutil.AssertNoError(t, err)
	dst := NewCollector[int]()

	var piped, unpiped any
	dst.On(events.Pipe, func(p any) { piped = p })
	dst.On(events.Unpipe, func(p any) { unpiped = p })

	src.Pipe(dst)
	testutil.AssertEqual(t, piped, any(src))
	testutil.AssertEqual(t, len(src.Links()), 1)
	testutil.AssertEqual(t, src.IsPaused(), false)

	src.Push(1)
	src.Unpipe(dst)

	testutil.AssertEqual(t, unpiped, any(src))
	testutil.AssertEqual(t, len(src.Links()), 0)
	testutil.AssertEqual(t, src.IsPaused(), true)

	src.Push(2)
	testutil.AssertSliceEqual(t, dst.Items(), []int{1})
	testutil.AssertEqual(t, src.ReadableLength(), 1)
	testutil.AssertEqual(t, src.ListenerCount(events.Data), 0)
}

func TestPipeLinks(t *testing.T) {
	src, err := NewReadable(ReadableConfig[int]{})
	testutil.AssertNoError(t, err)
	mid := PassThrough[int]()
	dst := NewCollector[int]()

	src.Pipe(mid)
	mid.Pipe(dst)

	first := src.Links()
	second := mid.Links()
	testutil.AssertEqual(t, len(first), 1)
	testutil.AssertEqual(t, len(second), 1)

	testutil.AssertEqual(t, first[0].Source(), any(src))
	testutil.AssertEqual(t, first[0].Destination(), any(mid))
	testutil.AssertEqual(t, first[0].PropagatesEnd(), true)
	testutil.AssertEqual(t, first[0].Upstream(), Link(nil))
	testutil.AssertEqual(t, second[0].Upstream(), first[0])
	testutil.AssertEqual(t, second[0].Destination(), any(dst))

	src.Destroy(nil)
	mid.Destroy(nil)
	dst.Destroy(nil)
}

func TestPipeFanOut(t *testing.T) {
	tests := []struct {
		name   string
		policy BackpressurePolicy
		want   []int
		paused bool
	}{
		{"pause on any", PauseOnAny, []int{1}, true},
		{"pause on all", PauseOnAll, []int{1, 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewReadable(ReadableConfig[int]{Backpressure: tt.policy})
			testutil.AssertNoError(t, err)

			fast := NewCollector[int]()
			slow, sink := newManualWritable[int](t, 1)
			src.Pipe(fast)
			src.Pipe(slow)

			src.Push(1)
			src.Push(2)

			testutil.AssertSliceEqual(t, fast.Items(), tt.want)
			testutil.AssertEqual(t, src.IsPaused(), tt.paused)

			sink.completeNext(nil)
			testutil.AssertSliceEqual(t, fast.Items(), []int{1, 2})

			src.PushEnd()
			sink.completeAll()
			testutil.AssertSliceEqual(t, sink.written(), []int{1, 2})
			testutil.AssertEqual(t, fast.WritableFinished(), true)
			testutil.AssertEqual(t, slow.WritableFinished(), true)
		})
	}
}

func TestPipeIntoBackpressuredSource(t *testing.T) {
	src := FromSlice(seq(1, 100))
	slow, sink := newManualWritable[int](t, 2)

	src.Pipe(slow)
	testutil.AssertEqual(t, src.IsPaused(), true)
	testutil.AssertEqual(t, slow.WritableLength(), 2)

	fast := NewCollector[int]()
	src.Pipe(fast)

	// The new destination must not override the pause.
	testutil.AssertEqual(t, src.IsPaused(), true)
	testutil.AssertEqual(t, slow.WritableLength(), 2)
	testutil.AssertEqual(t, len(fast.Items()), 0)

	peak := 0
	for sink.completeNext(nil) {
		if n := slow.WritableLength(); n > peak {
			peak = n
		}
	}
	if peak > slow.WritableHighWaterMark()+1 {
		t.Fatalf("slow destination buffered %d chunks, high-water mark %d", peak, slow.WritableHighWaterMark())
	}

	testutil.AssertSliceEqual(t, sink.written(), seq(1, 100))
	// 1 and 2 were emitted before fast was attached.
	testutil.AssertSliceEqual(t, fast.Items(), seq(3, 100))
	testutil.AssertEqual(t, slow.WritableFinished(), true)
	testutil.AssertEqual(t, fast.WritableFinished(), true)
}

// measuredWritable records the largest buffered size seen after a write.
type measuredWritable struct {
	*Writable[int]

	mu   sync.Mutex
	got  []int
	peak int
}

func (m *measuredWritable) Write(n int) (bool, error) {
	ok, err := m.Writable.Write(n)
	length := m.WritableLength()
	m.mu.Lock()
	if length > m.peak {
		m.peak = length
	}
	m.mu.Unlock()
	return ok, err
}

func newMeasuredWritable(t *testing.T, hwm int, delay time.Duration) *measuredWritable {
	t.Helper()
	m := &measuredWritable{}
	w, err := NewWritable(WritableConfig[int]{
		HighWaterMark: hwm,
		Write: func(n int, done func(error)) {
			go func() {
				time.Sleep(delay)
				m.mu.Lock()
				m.got = append(m.got, n)
				m.mu.Unlock()
				done(nil)
			}()
		},
	})
	testutil.AssertNoError(t, err)
	m.Writable = w
	return m
}

func TestPipeAllFanOut(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	const hwm = 4
	var sinks []*measuredWritable
	var dsts []Destination[int]
	for i := 1; i <= 3; i++ {
		m := newMeasuredWritable(t, hwm, time.Duration(i)*20*time.Microsecond)
		sinks = append(sinks, m)
		dsts = append(dsts, m)
	}

	src := FromSlice(seq(1, 300))
	src.PipeAll(dsts)

	for i, m := range sinks {
		testutil.AssertNoError(t, Finished(ctx, m.Writable))

		m.mu.Lock()
		got, peak := append([]int(nil), m.got...), m.peak
		m.mu.Unlock()

		testutil.AssertSliceEqual(t, got, seq(1, 300))
		if peak > hwm+1 {
			t.Fatalf("destination %d buffered %d chunks, high-water mark %d", i, peak, hwm)
		}
	}
}

func TestPipeAllFromEndedSource(t *testing.T) {
	src := Empty[int]()
	var got []int
	src.OnData(func(n int) { got = append(got, n) })
	testutil.AssertEqual(t, src.ReadableEnded(), true)

	a, b := NewCollector[int](), NewCollector[int]()
	src.PipeAll([]Destination[int]{a, b})

	testutil.AssertEqual(t, a.WritableFinished(), true)
	testutil.AssertEqual(t, b.WritableFinished(), true)
	testutil.AssertEqual(t, len(got), 0)
}

func TestBackpressurePolicyString(t *testing.T) {
	testutil.AssertEqual(t, PauseOnAny.String(), "pause-on-any")
	testutil.AssertEqual(t, PauseOnAll.String(), "pause-on-all")
}
