package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter backs the limiter with a Redis INCR per window bucket —
// the adapter the `redis` rateLimitAdapter knob selects for multi-process
// deployments that don't want the bucket traffic hitting the primary
// database (spec.md §4.3's "reserved" Redis slot).
type RedisAdapter struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, keyPrefix: "webpods:ratelimit:"}
}

func NewRedisClientFromURL(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("redis url is empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

func (a *RedisAdapter) Increment(ctx context.Context, identifier string, action Action, windowStart, windowEnd time.Time) (int, error) {
	key := a.keyPrefix + identifier + "|" + string(action) + "|" + windowStart.Format(time.RFC3339)
	count, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		ttl := time.Until(windowEnd)
		if ttl > 0 {
			a.client.Expire(ctx, key, ttl)
		}
	}
	return int(count), nil
}
