// Package cache implements the four-pool write-through cache of spec.md
// §4.8 (pods, streams, singleRecords, recordLists), generic over adapter
// (in-memory default, Redis reserved, none to disable), with singleflight
// collapsing of concurrent duplicate loads, mirroring the generic
// cacheEntry[T]/getCache/setCache pattern used for Kubernetes resource
// caching in the teacher repo.
package cache

import (
	"context"
	"time"
)

// Backend is the byte-level storage a Pool is built on. Pool handles JSON
// encoding so every backend only deals with []byte.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix — used for the
	// targeted invalidation spec.md §4.8 requires on pod/stream writes.
	DeletePrefix(ctx context.Context, prefix string) error
}
