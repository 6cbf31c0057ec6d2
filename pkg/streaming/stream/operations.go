package stream

import (
	"bytes"
)

// PassThrough returns a Transform that forwards every chunk unchanged.
func PassThrough[T any](opts ...Option) *Transform[T, T] {
	cfg := transformConfig[T, T](newOptions("passthrough", opts))
	cfg.Transform = func(chunk T, push func(T) bool, done func(error)) {
		push(chunk)
		done(nil)
	}
	return mustTransform(cfg)
}

// Map returns a Transform that emits fn(chunk) for every chunk.
func Map[In, Out any](fn func(In) Out, opts ...Option) *Transform[In, Out] {
	cfg := transformConfig[In, Out](newOptions("map", opts))
	cfg.Transform = func(chunk In, push func(Out) bool, done func(error)) {
		push(fn(chunk))
		done(nil)
	}
	return mustTransform(cfg)
}

// Filter returns a Transform that forwards the chunks for which keep returns true.
func Filter[T any](keep func(T) bool, opts ...Option) *Transform[T, T] {
	cfg := transformConfig[T, T](newOptions("filter", opts))
	cfg.Transform = func(chunk T, push func(T) bool, done func(error)) {
		if keep(chunk) {
			push(chunk)
		}
		done(nil)
	}
	return mustTransform(cfg)
}

// FlatMap returns a Transform that emits every element of fn(chunk), in order.
func FlatMap[In, Out any](fn func(In) []Out, opts ...Option) *Transform[In, Out] {
	cfg := transformConfig[In, Out](newOptions("flatmap", opts))
	cfg.Transform = func(chunk In, push func(Out) bool, done func(error)) {
		for _, out := range fn(chunk) {
			push(out)
		}
		done(nil)
	}
	return mustTransform(cfg)
}

// Peek returns a Transform that calls fn for every chunk before forwarding it.
func Peek[T any](fn func(T), opts ...Option) *Transform[T, T] {
	cfg := transformConfig[T, T](newOptions("peek", opts))
	cfg.Transform = func(chunk T, push func(T) bool, done func(error)) {
		fn(chunk)
		push(chunk)
		done(nil)
	}
	return mustTransform(cfg)
}

// Skip returns a Transform that drops the first n chunks.
func Skip[T any](n int, opts ...Option) *Transform[T, T] {
	cfg := transformConfig[T, T](newOptions("skip", opts))
	skipped := 0
	cfg.Transform = func(chunk T, push func(T) bool, done func(error)) {
		if skipped < n {
			skipped++
		} else {
			push(chunk)
		}
		done(nil)
	}
	return mustTransform(cfg)
}

// Limit returns a Transform that forwards the first n chunks and then ends.
// Once the output has ended, the stream piped into the Limit is destroyed,
// so an infinite source stops producing.
func Limit[T any](n int, opts ...Option) *Transform[T, T] {
	cfg := transformConfig[T, T](newOptions("limit", opts))
	var t *Transform[T, T]
	taken := 0
	cfg.Transform = func(chunk T, push func(T) bool, done func(error)) {
		if taken >= n {
			done(nil)
			return
		}
		taken++
		push(chunk)
		if taken == n {
			t.Readable.PushEnd()
		}
		done(nil)
	}
	t = mustTransform(cfg)
	t.Readable.onEnd = t.stopUpstream
	if n <= 0 {
		t.Readable.PushEnd()
	}
	return t
}

// Distinct returns a Transform that drops chunks equal to an earlier one.
func Distinct[T comparable](opts ...Option) *Transform[T, T] {
	cfg := transformConfig[T, T](newOptions("distinct", opts))
	seen := make(map[T]struct{})
	cfg.Transform = func(chunk T, push func(T) bool, done func(error)) {
		if _, dup := seen[chunk]; !dup {
			seen[chunk] = struct{}{}
			push(chunk)
		}
		done(nil)
	}
	return mustTransform(cfg)
}

// Batch returns a Transform that groups chunks into slices of size. The
// last batch may be shorter. size <= 0 is treated as 1.
func Batch[T any](size int, opts ...Option) *Transform[T, []T] {
	if size <= 0 {
		size = 1
	}
	cfg := transformConfig[T, []T](newOptions("batch", append([]Option{WithObjectMode()}, opts...)))
	var pending []T
	cfg.Transform = func(chunk T, push func([]T) bool, done func(error)) {
		pending = append(pending, chunk)
		if len(pending) == size {
			push(pending)
			pending = nil
		}
		done(nil)
	}
	cfg.Flush = func(push func([]T) bool, done func(error)) {
		if len(pending) > 0 {
			push(pending)
			pending = nil
		}
		done(nil)
	}
	return mustTransform(cfg)
}

// Lines returns a Transform that splits a byte stream into lines, without
// the line terminator ("\n" or "\r\n"). A final line without terminator is
// emitted on end.
func Lines(opts ...Option) *Transform[[]byte, string] {
	cfg := transformConfig[[]byte, string](newOptions("lines", opts))
	var partial []byte
	cfg.Transform = func(chunk []byte, push func(string) bool, done func(error)) {
		for {
			i := bytes.IndexByte(chunk, '\n')
			if i < 0 {
				break
			}
			line := append(partial, chunk[:i]...)
			partial = nil
			push(string(bytes.TrimSuffix(line, []byte{'\r'})))
			chunk = chunk[i+1:]
		}
		partial = append(partial, chunk...)
		done(nil)
	}
	cfg.Flush = func(push func(string) bool, done func(error)) {
		if len(partial) > 0 {
			push(string(bytes.TrimSuffix(partial, []byte{'\r'})))
			partial = nil
		}
		done(nil)
	}
	return mustTransform(cfg)
}
