// Package buffer provides the growable FIFO ring that backs every stream's
// internal queue.
//
// A Queue measures its contents with a SizeFunc: byte streams count the
// length of each chunk, object streams count one per chunk. Push never
// refuses a chunk; it reports whether the queue is still below its
// high-water mark so the caller can stop producing.
//
//	q := buffer.New[[]byte](16, func(b []byte) int { return len(b) })
//	more := q.Push([]byte("hello"))
//	chunk, ok := buffer.ReadBytes(q, 2) // "he"
package buffer
