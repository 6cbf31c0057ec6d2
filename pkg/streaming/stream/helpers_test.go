package stream

import (
	"sync"
	"testing"
)

// manualSink is a Write hook whose completions are driven by the test.
type manualSink[T any] struct {
	mu     sync.Mutex
	chunks []T
	dones  []func(error)
}

func (s *manualSink[T]) write(chunk T, done func(error)) {
	s.mu.Lock()
	s.chunks = append(s.chunks, chunk)
	s.dones = append(s.dones, done)
	s.mu.Unlock()
}

// completeNext completes the oldest pending write.
func (s *manualSink[T]) completeNext(err error) bool {
	s.mu.Lock()
	if len(s.dones) == 0 {
		s.mu.Unlock()
		return false
	}
	done := s.dones[0]
	s.dones = s.dones[1:]
	s.mu.Unlock()
	done(err)
	return true
}

// completeAll completes pending writes, including ones started meanwhile.
func (s *manualSink[T]) completeAll() int {
	n := 0
	for s.completeNext(nil) {
		n++
	}
	return n
}

func (s *manualSink[T]) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dones)
}

func (s *manualSink[T]) written() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.chunks...)
}

func newManualWritable[T any](t *testing.T, hwm int) (*Writable[T], *manualSink[T]) {
	t.Helper()
	sink := &manualSink[T]{}
	w, err := NewWritable(WritableConfig[T]{HighWaterMark: hwm, Mode: ModeObject, Write: sink.write})
	if err != nil {
		t.Fatalf("NewWritable: %v", err)
	}
	return w, sink
}

func syncWrite[T any](_ T, done func(error)) {
	done(nil)
}
