package buffer

// SizeFunc returns how much of the high-water mark a chunk occupies.
type SizeFunc[T any] func(T) int

// Queue is a FIFO ring of chunks with a running size measured against a
// high-water mark.
//
// Push always accepts the chunk and reports whether the queue is still below
// the mark. A producer that stops at the first false over-commits the mark by
// at most the one chunk that caused the crossing.
//
// Queue is not safe for concurrent use; it is owned by exactly one stream,
// which guards it with its own mutex.
type Queue[T any] struct {
	buffer []T
	head   int
	tail   int
	count  int

	size          int
	highWaterMark int
	sizeOf        SizeFunc[T]
}

const minCapacity = 16

// New creates an empty queue. A nil sizeOf counts every chunk as 1.
func New[T any](highWaterMark int, sizeOf SizeFunc[T]) *Queue[T] {
	if sizeOf == nil {
		sizeOf = CountOne[T]
	}
	return &Queue[T]{
		buffer:        make([]T, minCapacity),
		highWaterMark: highWaterMark,
		sizeOf:        sizeOf,
	}
}

// CountOne is the object-mode SizeFunc.
func CountOne[T any](T) int { return 1 }

// ByteLength returns the byte-mode size of v and whether v is a byte chunk.
func ByteLength(v any) (int, bool) {
	switch c := v.(type) {
	case []byte:
		return len(c), true
	case string:
		return len(c), true
	default:
		return 0, false
	}
}

// Push appends chunk and reports whether the size is still below the mark.
func (q *Queue[T]) Push(chunk T) bool {
	if q.count == len(q.buffer) {
		q.grow()
	}
	q.buffer[q.tail] = chunk
	q.tail = (q.tail + 1) % len(q.buffer)
	q.count++
	q.size += q.sizeOf(chunk)
	return q.size < q.highWaterMark
}

// Unshift puts chunk back at the head of the queue.
func (q *Queue[T]) Unshift(chunk T) {
	if q.count == len(q.buffer) {
		q.grow()
	}
	q.head = (q.head - 1 + len(q.buffer)) % len(q.buffer)
	q.buffer[q.head] = chunk
	q.count++
	q.size += q.sizeOf(chunk)
}

// Shift removes and returns the oldest chunk.
func (q *Queue[T]) Shift() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	chunk := q.buffer[q.head]
	q.buffer[q.head] = zero
	q.head = (q.head + 1) % len(q.buffer)
	q.count--
	q.size -= q.sizeOf(chunk)
	return chunk, true
}

// Peek returns the oldest chunk without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.buffer[q.head], true
}

// Len returns the number of queued chunks.
func (q *Queue[T]) Len() int { return q.count }

// Size returns the total size of queued chunks.
func (q *Queue[T]) Size() int { return q.size }

// HighWaterMark returns the configured mark.
func (q *Queue[T]) HighWaterMark() int { return q.highWaterMark }

// Full reports whether the size is at or above the mark.
func (q *Queue[T]) Full() bool { return q.size >= q.highWaterMark }

// Clear discards every chunk and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	n := q.count
	var zero T
	for i := 0; i < q.count; i++ {
		q.buffer[(q.head+i)%len(q.buffer)] = zero
	}
	q.head, q.tail, q.count, q.size = 0, 0, 0, 0
	return n
}

// Each calls fn for every queued chunk in FIFO order without removing them.
func (q *Queue[T]) Each(fn func(T)) {
	for i := 0; i < q.count; i++ {
		fn(q.buffer[(q.head+i)%len(q.buffer)])
	}
}

func (q *Queue[T]) grow() {
	next := make([]T, len(q.buffer)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.buffer[(q.head+i)%len(q.buffer)]
	}
	q.buffer = next
	q.head = 0
	q.tail = q.count
}

// ReadBytes removes exactly n bytes from the front of q, joining or splitting
// chunks as needed. It returns false, leaving q untouched, when fewer than n
// bytes are queued. n <= 0 returns the head chunk as is.
func ReadBytes(q *Queue[[]byte], n int) ([]byte, bool) {
	if n <= 0 {
		return q.Shift()
	}
	if q.Size() < n {
		return nil, false
	}

	head, _ := q.Peek()
	if len(head) == n {
		return q.Shift()
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, _ := q.Shift()
		need := n - len(out)
		if len(chunk) <= need {
			out = append(out, chunk...)
			continue
		}
		out = append(out, chunk[:need]...)
		q.Unshift(chunk[need:])
	}
	return out, true
}

// ReadAll removes and joins every queued byte chunk.
func ReadAll(q *Queue[[]byte]) []byte {
	out := make([]byte, 0, q.Size())
	for {
		chunk, ok := q.Shift()
		if !ok {
			return out
		}
		out = append(out, chunk...)
	}
}
