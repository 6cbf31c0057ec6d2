package redisstream

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the part of a Redis client used by this package.
// redis.UniversalClient satisfies it.
type Client interface {
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Message is a Redis Streams entry.
type Message = redis.XMessage

// Defaults shared by sources and sinks.
const (
	DefaultCount        = 100
	DefaultBlock        = 5 * time.Second
	DefaultRedisTimeout = 500 * time.Millisecond
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 50 * time.Millisecond
)

// RedisError represents a Redis operation error.
type RedisError struct {
	Operation string
	Stream    string
	Err       error
}

func (e *RedisError) Error() string {
	return "redis error in " + e.Operation + " on " + e.Stream + ": " + e.Err.Error()
}

func (e *RedisError) Unwrap() error {
	return e.Err
}

// isNil reports whether err is the empty reply Redis sends when XREAD finds
// nothing before its block timeout.
func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
