package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	usageKeyPrefix   = "asr:quota:usage:"
	alertedKeyPrefix = "asr:quota:alerted:"
)

// RedisCounter is a Redis-backed Counter. Usage counters are plain INCRBY
// keys per month; the alert marker is a SETNX key with the marker TTL.
type RedisCounter struct {
	client *goredis.Client
}

// NewRedisCounter creates a counter backed by the given Redis client.
func NewRedisCounter(client *goredis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Usage returns the minutes consumed in the given month.
func (c *RedisCounter) Usage(ctx context.Context, month string) (int, error) {
	raw, err := c.client.Get(ctx, usageKeyPrefix+month).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("quota: usage %q: %w", month, err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("quota: corrupt counter %q: %w", month, err)
	}
	return n, nil
}

// Add atomically increments the month's counter and returns the new total.
func (c *RedisCounter) Add(ctx context.Context, month string, minutes int) (int, error) {
	total, err := c.client.IncrBy(ctx, usageKeyPrefix+month, int64(minutes)).Result()
	if err != nil {
		return 0, fmt.Errorf("quota: add %q: %w", month, err)
	}
	return int(total), nil
}

// MarkAlerted records the alert marker with the given validity.
func (c *RedisCounter) MarkAlerted(ctx context.Context, month string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, alertedKeyPrefix+month, time.Now().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("quota: mark alerted %q: %w", month, err)
	}
	return ok, nil
}

var _ Counter = (*RedisCounter)(nil)
