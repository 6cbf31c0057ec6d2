package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/vnykmshr/streamcore/internal/testutil"
	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/events"
)

func TestPipelineOddNumbers(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	sink := NewCollector[int]()
	err := Pipeline(ctx,
		FromSlice(seq(1, 1000)),
		Filter(func(n int) bool { return n%2 == 1 }),
		sink,
	)
	testutil.AssertNoError(t, err)

	got := sink.Items()
	testutil.AssertEqual(t, len(got), 500)
	for i, v := range got {
		if v != 2*i+1 {
			t.Fatalf("item %d = %d, want %d", i, v, 2*i+1)
		}
	}
}

func TestPipelineValidation(t *testing.T) {
	ctx := context.Background()

	err := Pipeline(ctx, FromSlice([]int{1}))
	if !scerrors.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	tests := []struct {
		name   string
		stages []any
	}{
		{"not a stream", []any{FromSlice([]int{1}), "sink"}},
		{"chunk types differ", []any{FromSlice([]int{1}), NewCollector[string]()}},
		{"writable in the middle", []any{FromSlice([]int{1}), NewCollector[int](), NewCollector[int]()}},
		{"readable at the end", []any{FromSlice([]int{1}), FromSlice([]int{2})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Pipeline(ctx, tt.stages...)
			if !errors.Is(err, scerrors.ErrStageMismatch) {
				t.Fatalf("expected ErrStageMismatch, got %v", err)
			}
		})
	}
}

func TestPipelineContextCancel(t *testing.T) {
	ch := make(chan int)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := FromChannel(ch)
	sink := NewCollector[int]()

	errc := make(chan error, 1)
	go func() { errc <- Pipeline(ctx, src, sink) }()

	ch <- 1
	testutil.AssertEventually(t, func() bool { return len(sink.Items()) == 1 })

	cancel()
	err := <-errc
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	testutil.AssertEqual(t, src.Destroyed(), true)
	testutil.AssertEqual(t, sink.Destroyed(), true)
}

func TestPipelineLimitStopsGenerator(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	n := 0
	gen := Generate(func() int {
		n++
		return n
	})
	sink := NewCollector[int]()

	testutil.AssertNoError(t, Pipeline(ctx, gen, Limit[int](5), sink))
	testutil.AssertSliceEqual(t, sink.Items(), []int{1, 2, 3, 4, 5})
	testutil.AssertEqual(t, gen.Destroyed(), true)
}

func TestPipelineLimitZero(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	got, err := ToSlice[int](ctx, Pipe[int](FromSlice([]int{1, 2, 3}), Limit[int](0)))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 0)
}

func TestFinished(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	t.Run("readable ends", func(t *testing.T) {
		src := FromSlice([]int{1, 2, 3})
		sum := 0
		src.OnData(func(n int) { sum += n })
		testutil.AssertNoError(t, Finished(ctx, src))
		testutil.AssertEqual(t, sum, 6)
	})

	t.Run("writable closes early", func(t *testing.T) {
		w, err := NewWritable(WritableConfig[int]{Write: syncWrite[int]})
		testutil.AssertNoError(t, err)
		w.Destroy(nil)

		err = Finished(ctx, w)
		if !errors.Is(err, scerrors.ErrPrematureClose) {
			t.Fatalf("expected ErrPrematureClose, got %v", err)
		}
	})

	t.Run("readable fails", func(t *testing.T) {
		r, err := NewReadable(ReadableConfig[int]{})
		testutil.AssertNoError(t, err)

		errc := make(chan error, 1)
		go func() { errc <- Finished(ctx, r) }()
		testutil.AssertEventually(t, func() bool { return r.ExternalListenerCount(events.Error) == 1 })

		boom := errors.New("boom")
		r.Fail(boom)
		err = <-errc
		if !errors.Is(err, boom) {
			t.Fatalf("expected %v, got %v", boom, err)
		}
	})

	t.Run("not a stream", func(t *testing.T) {
		err := Finished(ctx, 42)
		if !errors.Is(err, scerrors.ErrStageMismatch) {
			t.Fatalf("expected ErrStageMismatch, got %v", err)
		}
	})
}
