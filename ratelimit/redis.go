package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const limiterKeyPrefix = "asr:ratelimit:"

// RedisLimiter is a Redis-backed fixed-window limiter. The counter key is
// created with the window TTL on first increment and expires on its own,
// which is what resets the window.
type RedisLimiter struct {
	client *goredis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing limit submissions per window
// per identity.
func NewRedisLimiter(client *goredis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// CheckAndIncrement consumes one unit of the identity's budget.
func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, identity string) (bool, error) {
	key := limiterKeyPrefix + identity

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr %q: %w", identity, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: expire %q: %w", identity, err)
		}
	}
	return count <= int64(l.limit), nil
}

var _ Limiter = (*RedisLimiter)(nil)
