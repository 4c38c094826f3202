package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is the reserved multi-process adapter (spec.md §4.8), for
// deployments that run more than one webpods process behind a shared
// cache. Grounded on the same go-redis client construction the teacher
// uses for its session store.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client, keyPrefix: "webpods:cache:"}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, b.keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, b.keyPrefix+key, value, ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.keyPrefix+key).Err()
}

func (b *RedisBackend) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	pattern := b.keyPrefix + prefix + "*"
	for {
		keys, next, err := b.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}
