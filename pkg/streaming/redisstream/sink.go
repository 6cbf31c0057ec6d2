package redisstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	scerrors "github.com/vnykmshr/streamcore/pkg/common/errors"
	"github.com/vnykmshr/streamcore/pkg/common/validation"
	"github.com/vnykmshr/streamcore/pkg/logger"
	"github.com/vnykmshr/streamcore/pkg/metrics"
	"github.com/vnykmshr/streamcore/pkg/streaming/stream"
)

// SinkConfig configures a Redis Streams sink.
type SinkConfig struct {
	// Redis client for XADD. Required.
	Redis Client

	// Stream is the key of the Redis stream. Required.
	Stream string

	// MaxLen trims the stream to about this many entries on every add.
	// Default: 0 (no trimming)
	MaxLen int64

	// PreserveIDs adds entries under their own ID instead of letting Redis
	// assign one. Useful when copying a stream.
	PreserveIDs bool

	// RedisTimeout bounds each XADD attempt.
	// Default: 500ms
	RedisTimeout time.Duration

	// MaxRetries is the number of times a failed XADD is retried.
	// Default: 3
	MaxRetries int

	// RetryDelay is the delay before the first retry.
	// Default: 50ms
	RetryDelay time.Duration

	// HighWaterMark is the number of entries buffered before Write returns false.
	// Default: 16
	HighWaterMark int

	// Logger receives write logs.
	// Default: no-op
	Logger *zap.Logger

	// Metrics records stream activity.
	// Default: none
	Metrics *metrics.Registry
}

// Sink is a Writable that appends every message to a Redis stream with XADD.
type Sink struct {
	*stream.Writable[Message]

	client Client
	cfg    SinkConfig
	logger *zap.Logger
	ctx    context.Context

	mu     sync.Mutex
	lastID string
	added  int64
}

// NewSink creates a Sink from cfg.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if err := validation.First(
		validation.ValidateNotNil("redisstream", "Redis", cfg.Redis),
		validation.ValidateNotEmpty("redisstream", "Stream", cfg.Stream),
		validation.ValidateNonNegative("redisstream", "MaxLen", int(cfg.MaxLen)),
		validation.ValidateNonNegative("redisstream", "MaxRetries", cfg.MaxRetries),
		validation.ValidateNonNegativeDuration("redisstream", "RedisTimeout", cfg.RedisTimeout),
		validation.ValidateNonNegativeDuration("redisstream", "RetryDelay", cfg.RetryDelay),
	); err != nil {
		return nil, err
	}
	if cfg.RedisTimeout == 0 {
		cfg.RedisTimeout = DefaultRedisTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sink{
		client: cfg.Redis,
		cfg:    cfg,
		logger: logger.OrNop(cfg.Logger).With(zap.String("redis_stream", cfg.Stream)),
		ctx:    ctx,
	}
	w, err := stream.NewWritable(stream.WritableConfig[Message]{
		Name:          "redis:" + cfg.Stream,
		HighWaterMark: cfg.HighWaterMark,
		Mode:          stream.ModeObject,
		Write:         s.write,
		Destroy:       func(error) { cancel() },
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.Writable = w
	return s, nil
}

// LastID returns the ID Redis assigned to the most recent entry.
func (s *Sink) LastID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

// Added returns the number of entries appended so far.
func (s *Sink) Added() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.added
}

func (s *Sink) write(msg Message, done func(error)) {
	go func() {
		id, err := s.add(msg)
		if err != nil {
			done(&RedisError{Operation: "XADD", Stream: s.cfg.Stream, Err: err})
			return
		}
		s.mu.Lock()
		s.lastID = id
		s.added++
		s.mu.Unlock()
		done(nil)
	}()
}

func (s *Sink) add(msg Message) (string, error) {
	args := &redis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: msg.Values,
		ID:     "*",
	}
	if s.cfg.PreserveIDs && msg.ID != "" {
		args.ID = msg.ID
	}
	if s.cfg.MaxLen > 0 {
		args.MaxLen = s.cfg.MaxLen
		args.Approx = true
	}

	var id string
	op := func() error {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RedisTimeout)
		defer cancel()
		var err error
		id, err = s.client.XAdd(ctx, args).Result()
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded) && s.ctx.Err() == nil:
			return fmt.Errorf("%w: XADD took longer than %v", scerrors.ErrTimeout, s.cfg.RedisTimeout)
		case !scerrors.IsRetryable(err):
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryDelay
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.MaxRetries)), s.ctx)

	err := backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		s.logger.Debug("retrying XADD", zap.Duration("backoff", next), zap.Error(err))
	})
	return id, err
}
