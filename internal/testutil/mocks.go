package testutil

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrSimulated is returned by MockWriter for failures configured without an
// explicit error.
var ErrSimulated = errors.New("simulated write failure")

// MockClock is a manually advanced clock. Now and After can be injected
// wherever a package takes a time source, so schedules are tested without
// sleeping.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []mockTimer
}

type mockTimer struct {
	at time.Time
	ch chan time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After returns a channel that receives the mock time once the clock has
// been moved at least d past the current time.
func (m *MockClock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time, 1)
	at := m.now.Add(d)
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.timers = append(m.timers, mockTimer{at: at, ch: ch})
	return ch
}

// Jump moves the clock forward by d and returns a channel that has already
// fired. Used as an After func it makes every wait return at once.
func (m *MockClock) Jump(d time.Duration) <-chan time.Time {
	m.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- m.Now()
	return ch
}

// Waiters returns the number of After channels that have not fired yet.
func (m *MockClock) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(m.now.Add(d))
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(t)
}

func (m *MockClock) setLocked(t time.Time) {
	m.now = t
	pending := m.timers[:0]
	for _, timer := range m.timers {
		if timer.at.After(t) {
			pending = append(pending, timer)
			continue
		}
		timer.ch <- t
	}
	m.timers = pending
}

// MockWriter is an io.Writer standing in for a slow, flaky or short-writing
// sink. It keeps every accepted write as a separate chunk.
type MockWriter struct {
	mu sync.Mutex

	buf    bytes.Buffer
	chunks [][]byte
	calls  int

	delay     time.Duration
	failOnNth int
	failNext  int
	failErr   error
	alwaysErr error
	maxWrite  int
}

// NewMockWriter creates a new MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write accepts p, or part of it when short writes are configured, unless a
// failure is due for this call.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.calls++
	if mw.delay > 0 {
		time.Sleep(mw.delay)
	}

	switch {
	case mw.alwaysErr != nil:
		return 0, mw.alwaysErr
	case mw.failNext > 0:
		mw.failNext--
		return 0, mw.failErr
	case mw.failOnNth > 0 && mw.calls == mw.failOnNth:
		return 0, ErrSimulated
	}

	if mw.maxWrite > 0 && len(p) > mw.maxWrite {
		p = p[:mw.maxWrite]
	}
	mw.chunks = append(mw.chunks, append([]byte(nil), p...))
	return mw.buf.Write(p)
}

// String returns everything written so far.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// Len returns the number of bytes written so far.
func (mw *MockWriter) Len() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.Len()
}

// WriteCount returns the number of Write calls, failed ones included.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.calls
}

// Chunks returns a copy of each accepted write.
func (mw *MockWriter) Chunks() [][]byte {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	out := make([][]byte, len(mw.chunks))
	copy(out, mw.chunks)
	return out
}

// SetWriteDelay makes every Write call take at least delay.
func (mw *MockWriter) SetWriteDelay(delay time.Duration) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.delay = delay
}

// SetErrorOnNth fails the nth Write call with ErrSimulated.
func (mw *MockWriter) SetErrorOnNth(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.failOnNth = n
}

// FailNext fails the next n Write calls with err, or ErrSimulated if err
// is nil.
func (mw *MockWriter) FailNext(n int, err error) {
	if err == nil {
		err = ErrSimulated
	}
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.failNext = n
	mw.failErr = err
}

// SetAlwaysError fails every Write call with err.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.alwaysErr = err
}

// SetShortWrites limits every Write call to at most n bytes. Zero removes
// the limit.
func (mw *MockWriter) SetShortWrites(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.maxWrite = n
}
