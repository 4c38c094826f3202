package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"
)

// Pool is one of the four cache pools (pods, streams, singleRecords,
// recordLists), generic over the cached value's Go type. Values are
// JSON-encoded onto the Backend; singleflight collapses concurrent
// duplicate loads for the same key, matching the teacher's per-resource
// singleflight.Group fields.
type Pool[T any] struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
}

func NewPool[T any](backend Backend, ttl time.Duration) *Pool[T] {
	return &Pool[T]{backend: backend, ttl: ttl}
}

func (p *Pool[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, ok, err := p.backend.Get(ctx, key)
	if err != nil || !ok {
		return zero, false
	}
	var val T
	if err := json.Unmarshal(raw, &val); err != nil {
		return zero, false
	}
	return val, true
}

func (p *Pool[T]) Set(ctx context.Context, key string, value T) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = p.backend.Set(ctx, key, raw, p.ttl)
}

func (p *Pool[T]) Delete(ctx context.Context, key string) {
	_ = p.backend.Delete(ctx, key)
}

func (p *Pool[T]) DeletePrefix(ctx context.Context, prefix string) {
	_ = p.backend.DeletePrefix(ctx, prefix)
}

// GetOrLoad returns the cached value for key, loading and caching it via
// fn on a miss. Concurrent callers for the same key share one fn call.
func (p *Pool[T]) GetOrLoad(ctx context.Context, key string, fn func() (T, error)) (T, error) {
	if val, ok := p.Get(ctx, key); ok {
		return val, nil
	}
	v, err, _ := p.group.Do(key, func() (any, error) {
		if val, ok := p.Get(ctx, key); ok {
			return val, nil
		}
		val, err := fn()
		if err != nil {
			return nil, err
		}
		p.Set(ctx, key, val)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
