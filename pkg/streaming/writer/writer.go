package writer

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/common/validation"
	"github.com/vnykmshr/streamcore/pkg/logger"
	"github.com/vnykmshr/streamcore/pkg/metrics"
	"github.com/vnykmshr/streamcore/pkg/streaming/stream"
)

// ErrWriterClosed is returned when attempting to write to a closed writer.
var ErrWriterClosed = errors.New("writer is closed")

// Stats holds statistics about writer performance.
type Stats struct {
	// BytesWritten is the total number of bytes accepted by the underlying writer.
	BytesWritten int64

	// WriteCount is the total number of chunks written.
	WriteCount int64

	// RetryCount is the number of failed attempts that were retried.
	RetryCount int64

	// FlushCount is the number of times the underlying writer was flushed.
	FlushCount int64

	// ErrorCount is the total number of errors encountered.
	ErrorCount int64

	// AverageWriteTime is the average time per chunk, retries included.
	AverageWriteTime time.Duration

	// TotalWriteTime is the total time spent writing.
	TotalWriteTime time.Duration

	// LastWriteTime is the timestamp of the last successful write.
	LastWriteTime time.Time

	// BufferUtilization is the buffered size relative to the high-water mark.
	BufferUtilization float64
}

// Config holds configuration options for Writer.
type Config struct {
	// Name identifies the stream in logs, errors and metrics.
	// Default: "writer"
	Name string

	// HighWaterMark is the number of buffered bytes at which Write starts
	// returning false.
	// Default: 64KB
	HighWaterMark int

	// MaxRetries is the number of times to retry a failed write.
	// Default: 3
	MaxRetries int

	// RetryDelay is the delay before the first retry. Later retries back
	// off exponentially.
	// Default: 100ms
	RetryDelay time.Duration

	// MaxRetryDelay caps the delay between retries.
	// Default: 2s
	MaxRetryDelay time.Duration

	// OnError is called when a write fails for good.
	OnError func(error)

	// OnFlush is called after each chunk reaches the underlying writer.
	OnFlush func(bytesWritten int, duration time.Duration)

	// Logger receives retry and failure logs.
	// Default: no-op
	Logger *zap.Logger

	// Metrics records stream activity.
	// Default: none
	Metrics *metrics.Registry
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Name:          "writer",
		HighWaterMark: 64 * 1024, // 64KB
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		MaxRetryDelay: 2 * time.Second,
	}
}

// Writer is a byte Writable that copies every chunk to an io.Writer.
//
// Writes to the underlying writer run off the caller's goroutine, one at a
// time and in order, so a slow io.Writer only shows up as back-pressure.
// Failed writes are retried with exponential backoff; a write that still
// fails destroys the stream with a consumption error. If the underlying
// writer has a Flush method, it is called when the stream ends.
type Writer struct {
	*stream.Writable[[]byte]

	underlying io.Writer
	config     Config
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	statsMu sync.Mutex
	stats   Stats
}

type flusher interface {
	Flush() error
}

// New creates a Writer with the default configuration.
func New(w io.Writer) (*Writer, error) {
	return NewWithConfig(w, DefaultConfig())
}

// NewWithConfig creates a Writer with the specified configuration. Zero
// values take their defaults.
func NewWithConfig(w io.Writer, config Config) (*Writer, error) {
	if err := validation.First(
		validation.ValidateNotNil("writer", "underlying writer", w),
		validation.ValidateNonNegative("writer", "HighWaterMark", config.HighWaterMark),
		validation.ValidateNonNegative("writer", "MaxRetries", config.MaxRetries),
		validation.ValidateNonNegativeDuration("writer", "RetryDelay", config.RetryDelay),
		validation.ValidateNonNegativeDuration("writer", "MaxRetryDelay", config.MaxRetryDelay),
	); err != nil {
		return nil, err
	}

	defaults := DefaultConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.HighWaterMark == 0 {
		config.HighWaterMark = defaults.HighWaterMark
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.MaxRetryDelay == 0 {
		config.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if config.MaxRetryDelay < config.RetryDelay {
		config.MaxRetryDelay = config.RetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	wr := &Writer{
		underlying: w,
		config:     config,
		logger:     logger.OrNop(config.Logger).With(zap.String("stream", config.Name)),
		ctx:        ctx,
		cancel:     cancel,
	}

	writable, err := stream.NewWritable(stream.WritableConfig[[]byte]{
		Name:          config.Name,
		HighWaterMark: config.HighWaterMark,
		Mode:          stream.ModeBytes,
		Write:         wr.write,
		Final:         wr.final,
		Destroy:       func(error) { cancel() },
		Logger:        config.Logger,
		Metrics:       config.Metrics,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	wr.Writable = writable
	return wr, nil
}

// WriteString writes s as one chunk.
func (w *Writer) WriteString(s string) (bool, error) {
	return w.Write([]byte(s))
}

// Close ends the stream and waits until every buffered chunk has been
// written, the stream failed, or ctx is done.
func (w *Writer) Close(ctx context.Context) error {
	if err := w.End(); err != nil {
		if w.Destroyed() && w.Err() == nil {
			return ErrWriterClosed
		}
		return err
	}
	err := stream.Finished(ctx, w.Writable)
	if errors.Is(err, scerrors.ErrPrematureClose) {
		return ErrWriterClosed
	}
	return err
}

// Stats returns statistics about the writer's performance.
func (w *Writer) Stats() Stats {
	w.statsMu.Lock()
	stats := w.stats
	w.statsMu.Unlock()

	if hwm := w.WritableHighWaterMark(); hwm > 0 {
		stats.BufferUtilization = float64(w.WritableLength()) / float64(hwm)
	}
	if stats.WriteCount > 0 {
		stats.AverageWriteTime = time.Duration(int64(stats.TotalWriteTime) / stats.WriteCount)
	}
	return stats
}

func (w *Writer) write(chunk []byte, done func(error)) {
	go func() {
		start := time.Now()
		n, err := w.writeWithRetries(chunk)
		duration := time.Since(start)

		w.updateStats(func(s *Stats) {
			s.TotalWriteTime += duration
			if err != nil {
				s.ErrorCount++
				return
			}
			s.WriteCount++
			s.BytesWritten += int64(n)
			s.LastWriteTime = time.Now()
		})

		if err != nil {
			w.logger.Warn("write failed", zap.Int("bytes", len(chunk)), zap.Error(err))
			if w.config.OnError != nil {
				w.config.OnError(err)
			}
		} else if w.config.OnFlush != nil {
			w.config.OnFlush(n, duration)
		}
		done(err)
	}()
}

func (w *Writer) final(done func(error)) {
	f, ok := w.underlying.(flusher)
	if !ok {
		done(nil)
		return
	}
	go func() {
		err := f.Flush()
		w.updateStats(func(s *Stats) {
			s.FlushCount++
			if err != nil {
				s.ErrorCount++
			}
		})
		if err != nil && w.config.OnError != nil {
			w.config.OnError(err)
		}
		done(err)
	}()
}

// writeWithRetries writes data, resuming after partial writes, and retries
// failures with exponential backoff until MaxRetries is exhausted or the
// stream is destroyed.
func (w *Writer) writeWithRetries(data []byte) (int, error) {
	var written int
	op := func() error {
		n, err := w.underlying.Write(data[written:])
		written += n
		switch {
		case isPermanent(err):
			return backoff.Permanent(err)
		case err != nil:
			return err
		case written < len(data):
			return io.ErrShortWrite
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.config.RetryDelay
	policy.MaxInterval = w.config.MaxRetryDelay
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(w.config.MaxRetries)), w.ctx)
	err := backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		w.updateStats(func(s *Stats) { s.RetryCount++ })
		w.logger.Debug("retrying write", zap.Duration("backoff", next), zap.Error(err))
	})
	return written, err
}

func isPermanent(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) ||
		(err != nil && !scerrors.IsRetryable(err))
}

// updateStats safely updates statistics.
func (w *Writer) updateStats(updater func(*Stats)) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	updater(&w.stats)
}
