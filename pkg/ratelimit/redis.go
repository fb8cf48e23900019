package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow applies the fixed-window policy with counters kept in Redis so
// every API replica shares them. The window starts at a key's first request
// and ends when the counter key expires.
type RedisWindow struct {
	client *redis.Client
	prefix string
	size   time.Duration
	max    int
}

func NewRedisWindow(client *redis.Client, prefix string, size time.Duration, max int) *RedisWindow {
	return &RedisWindow{
		client: client,
		prefix: prefix + ":ratelimit:",
		size:   size,
		max:    max,
	}
}

func (r *RedisWindow) Allow(ctx context.Context, key string) (Decision, error) {
	k := r.prefix + key

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, k, r.size).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
		}
	}

	if int(count) <= r.max {
		return Decision{Allowed: true, Limit: r.max, Remaining: r.max - int(count)}, nil
	}

	retry, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if retry <= 0 {
		// the expiry was lost between INCR and PEXPIRE; start a fresh window
		if err := r.client.PExpire(ctx, k, r.size).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
		}
		retry = r.size
	}
	return Decision{Allowed: false, Limit: r.max, RetryAfter: retry}, nil
}
