package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// InMemoryBackend is the default adapter: a single-process, mutex-guarded
// map with lazy TTL expiry, the same shape as the teacher's per-namespace
// resourceCache maps.
type InMemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{entries: map[string]memoryEntry{}}
}

func (b *InMemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	e, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (b *InMemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	b.mu.Lock()
	b.entries[key] = memoryEntry{value: value, expires: expires}
	b.mu.Unlock()
	return nil
}

func (b *InMemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}

func (b *InMemoryBackend) DeletePrefix(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.entries {
		if strings.HasPrefix(k, prefix) {
			delete(b.entries, k)
		}
	}
	return nil
}

// NoneBackend disables caching: every Get misses, every Set/Delete is a
// no-op. Selected by the `cache.adapter: none` knob.
type NoneBackend struct{}

func (NoneBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NoneBackend) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoneBackend) Delete(context.Context, string) error                     { return nil }
func (NoneBackend) DeletePrefix(context.Context, string) error               { return nil }
