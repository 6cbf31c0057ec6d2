package redisstream

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vnykmshr/streamcore/pkg/common/validation"
	"github.com/vnykmshr/streamcore/pkg/logger"
	"github.com/vnykmshr/streamcore/pkg/metrics"
	"github.com/vnykmshr/streamcore/pkg/streaming/stream"
)

// SourceConfig configures a Redis Streams source.
type SourceConfig struct {
	// Redis client for XREAD. Required.
	Redis Client

	// Stream is the key of the Redis stream. Required.
	Stream string

	// StartID is the entry ID to read after. "0" reads from the beginning,
	// "$" only entries added after the first read.
	// Default: "0"
	StartID string

	// Count is the maximum number of entries fetched per XREAD.
	// Default: 100
	Count int64

	// Follow keeps the source open and waits for new entries. Without it
	// the source ends once it has caught up with the stream.
	Follow bool

	// Block is how long one XREAD waits for new entries when following.
	// Default: 5s
	Block time.Duration

	// HighWaterMark is the number of entries buffered ahead of the consumer.
	// Default: 16
	HighWaterMark int

	// Logger receives read logs.
	// Default: no-op
	Logger *zap.Logger

	// Metrics records stream activity.
	// Default: none
	Metrics *metrics.Registry
}

// NewSource returns a Readable of the entries of a Redis stream, in ID order.
//
// Entries are fetched in batches of Count from a single goroutine while the
// consumer keeps up. A failed XREAD fails the stream with a production error
// wrapping a *RedisError. Destroying the Readable cancels a blocked XREAD.
func NewSource(cfg SourceConfig) (*stream.Readable[Message], error) {
	if err := validation.First(
		validation.ValidateNotNil("redisstream", "Redis", cfg.Redis),
		validation.ValidateNotEmpty("redisstream", "Stream", cfg.Stream),
		validation.ValidateNonNegative("redisstream", "Count", int(cfg.Count)),
		validation.ValidateNonNegativeDuration("redisstream", "Block", cfg.Block),
	); err != nil {
		return nil, err
	}
	if cfg.StartID == "" {
		cfg.StartID = "0"
	}
	if cfg.Count == 0 {
		cfg.Count = DefaultCount
	}
	if cfg.Block == 0 {
		cfg.Block = DefaultBlock
	}

	r := &reader{
		client: cfg.Redis,
		stream: cfg.Stream,
		lastID: cfg.StartID,
		count:  cfg.Count,
		follow: cfg.Follow,
		block:  cfg.Block,
		logger: logger.OrNop(cfg.Logger).With(zap.String("redis_stream", cfg.Stream)),
	}

	opts := []stream.Option{
		stream.WithName("redis:" + cfg.Stream),
		stream.WithHighWaterMark(cfg.HighWaterMark),
		stream.WithObjectMode(),
		stream.WithMetrics(cfg.Metrics),
	}
	if cfg.Logger != nil {
		opts = append(opts, stream.WithLogger(cfg.Logger))
	}
	return stream.FromSource[Message](r, opts...), nil
}

type reader struct {
	client Client
	stream string
	lastID string
	count  int64
	follow bool
	block  time.Duration
	logger *zap.Logger

	pending []Message
}

func (r *reader) Next(ctx context.Context) (Message, bool, error) {
	for len(r.pending) == 0 {
		done, err := r.fetch(ctx)
		if err != nil {
			return Message{}, false, err
		}
		if done {
			return Message{}, false, nil
		}
	}

	msg := r.pending[0]
	r.pending = r.pending[1:]
	r.lastID = msg.ID
	return msg, true, nil
}

// fetch runs one XREAD and reports whether the source has caught up and
// should end.
func (r *reader) fetch(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	// A negative Block sends no BLOCK argument, so XREAD returns at once.
	block := time.Duration(-1)
	if r.follow {
		block = r.block
	}

	res, err := r.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{r.stream, r.lastID},
		Count:   r.count,
		Block:   block,
	}).Result()
	switch {
	case isNil(err):
		return !r.follow, nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, &RedisError{Operation: "XREAD", Stream: r.stream, Err: err}
	}

	for _, s := range res {
		r.pending = append(r.pending, s.Messages...)
	}
	r.logger.Debug("fetched entries", zap.Int("count", len(r.pending)), zap.String("after", r.lastID))
	if len(r.pending) == 0 {
		return !r.follow, nil
	}
	return false, nil
}

func (r *reader) Close() error {
	return nil
}
