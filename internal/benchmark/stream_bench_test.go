package benchmark

import (
	"context"
	"io"
	"strconv"
	"testing"

	"github.com/vnykmshr/streamcore/pkg/events"
	"github.com/vnykmshr/streamcore/pkg/streaming/buffer"
	"github.com/vnykmshr/streamcore/pkg/streaming/stream"
	"github.com/vnykmshr/streamcore/pkg/streaming/writer"
)

func ints(size int) []int {
	data := make([]int, size)
	for i := range data {
		data[i] = i
	}
	return data
}

// BenchmarkToSlice measures draining a slice source.
func BenchmarkToSlice(b *testing.B) {
	for _, size := range []int{10, 100, 1000, 10000} {
		data := ints(size)

		b.Run(sizeLabel(size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_, _ = stream.ToSlice[int](context.Background(), stream.FromSlice(data))
			}
		})
	}
}

// BenchmarkFilter measures a single filter stage.
func BenchmarkFilter(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		data := ints(size)

		b.Run(sizeLabel(size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				out := stream.NewCollector[int]()
				_ = stream.Pipeline(context.Background(),
					stream.FromSlice(data),
					stream.Filter(func(n int) bool { return n%2 == 0 }),
					out,
				)
			}
		})
	}
}

// BenchmarkChainedOperations measures filter, map and filter stages in a row.
func BenchmarkChainedOperations(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		data := ints(size)

		b.Run(sizeLabel(size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				out := stream.NewCollector[int]()
				_ = stream.Pipeline(context.Background(),
					stream.FromSlice(data),
					stream.Filter(func(n int) bool { return n%2 == 0 }),
					stream.Map(func(n int) int { return n * 2 }),
					stream.Filter(func(n int) bool { return n > 100 }),
					out,
				)
			}
		})
	}
}

// BenchmarkHighWaterMark measures how the buffer limit affects throughput
// into an asynchronous sink.
func BenchmarkHighWaterMark(b *testing.B) {
	data := ints(10000)

	for _, hwm := range []int{1, 16, 1024} {
		b.Run("hwm"+strconv.Itoa(hwm), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				ch := make(chan int, 64)
				done := make(chan struct{})
				go func() {
					defer close(done)
					for range ch {
					}
				}()
				_ = stream.Pipeline(context.Background(),
					stream.FromSlice(data, stream.WithHighWaterMark(hwm)),
					stream.ToChannel(ch, stream.WithHighWaterMark(hwm)),
				)
				<-done
			}
		})
	}
}

// BenchmarkLines measures splitting a byte stream into lines.
func BenchmarkLines(b *testing.B) {
	chunk := make([]byte, 0, 4096)
	for len(chunk)+16 <= cap(chunk) {
		chunk = append(chunk, "a line of text.\n"...)
	}
	chunks := make([][]byte, 256)
	for i := range chunks {
		chunks[i] = chunk
	}

	b.ReportAllocs()
	b.SetBytes(int64(len(chunk) * len(chunks)))
	for i := 0; i < b.N; i++ {
		_ = stream.Pipeline(context.Background(),
			stream.FromSlice(chunks),
			stream.Lines(),
			stream.ForEach(func(string) error { return nil }),
		)
	}
}

// BenchmarkWriter measures the retrying io.Writer sink.
func BenchmarkWriter(b *testing.B) {
	w, err := writer.New(io.Discard)
	if err != nil {
		b.Fatal(err)
	}
	data := []byte("benchmark data")
	drained := make(chan struct{}, 1)
	w.OnDrain(func() { drained <- struct{}{} })

	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := w.Write(data)
		if err != nil {
			b.Fatal(err)
		}
		if !ok {
			<-drained
		}
	}
	_ = w.Close(context.Background())
}

// BenchmarkQueue measures the buffer queue under a steady push/shift load.
func BenchmarkQueue(b *testing.B) {
	q := buffer.New[int](1024, buffer.CountOne[int])

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		q.Push(i)
		if q.Full() {
			for q.Len() > 0 {
				q.Shift()
			}
		}
	}
}

// BenchmarkEmit measures event delivery to a few listeners.
func BenchmarkEmit(b *testing.B) {
	e := events.New()
	for i := 0; i < 3; i++ {
		e.On(events.Data, func(any) {})
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		e.Emit(events.Data, i)
	}
}

// sizeLabel returns a readable label for benchmark sizes.
func sizeLabel(size int) string {
	switch {
	case size >= 10000:
		return "10k"
	case size >= 1000:
		return "1k"
	case size >= 100:
		return "100"
	default:
		return "10"
	}
}
