// Package ratelimit implements the per-user hourly fixed-window admission
// control of spec.md §4.3: read/write/pod_create/stream_create actions,
// each with its own per-hour limit, admitted via an atomic upsert on the
// current window's bucket.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webpods-org/webpods/internal/corerr"
	"github.com/webpods-org/webpods/internal/db"
)

type Action string

const (
	ActionRead         Action = "read"
	ActionWrite        Action = "write"
	ActionPodCreate    Action = "pod_create"
	ActionStreamCreate Action = "stream_create"
)

// Limits holds the configured per-hour ceiling for each action.
type Limits struct {
	Read         int
	Write        int
	PodCreate    int
	StreamCreate int
}

func (l Limits) ceiling(action Action) int {
	switch action {
	case ActionRead:
		return l.Read
	case ActionWrite:
		return l.Write
	case ActionPodCreate:
		return l.PodCreate
	case ActionStreamCreate:
		return l.StreamCreate
	default:
		return 0
	}
}

// Decision is returned on every admission check, whether admitted or not,
// so the HTTP layer can always populate X-RateLimit-* response headers.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetUnix int64
}

// Window computes the current fixed hourly window per spec.md §4.3:
// windowEnd = ceil(now/1h)*1h, windowStart = windowEnd - 1h.
func Window(now time.Time) (start, end time.Time) {
	truncated := now.Truncate(time.Hour)
	if truncated.Equal(now) {
		end = now
	} else {
		end = truncated.Add(time.Hour)
	}
	start = end.Add(-time.Hour)
	return start, end
}

// Adapter is the pluggable bucket store: sql (backed by internal/db),
// in-memory (single-process), or redis (reserved, see RedisAdapter), or
// none (admission control disabled). Matches spec.md's `rateLimitAdapter`
// knob.
type Adapter interface {
	// Increment admits one unit of `action` for `identifier` in the
	// current window and returns the post-increment count.
	Increment(ctx context.Context, identifier string, action Action, windowStart, windowEnd time.Time) (int, error)
}

// Limiter answers admission questions for one action/identifier pair.
type Limiter struct {
	Adapter Adapter
	Limits  Limits
}

func New(adapter Adapter, limits Limits) *Limiter {
	return &Limiter{Adapter: adapter, Limits: limits}
}

// Admit increments the bucket for (identifier, action) at the current
// window and reports whether the request may proceed.
func (l *Limiter) Admit(ctx context.Context, identifier string, action Action) (*Decision, error) {
	limit := l.Limits.ceiling(action)
	if limit <= 0 {
		return &Decision{Allowed: true, Limit: 0, Remaining: 0}, nil
	}
	now := time.Now().UTC()
	start, end := Window(now)
	count, err := l.Adapter.Increment(ctx, identifier, action, start, end)
	if err != nil {
		return nil, corerr.Wrap(corerr.Internal, "rate limit admission", err)
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	d := &Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetUnix: end.Unix(),
	}
	if !d.Allowed {
		return d, corerr.New(corerr.RateLimited, fmt.Sprintf("rate limit exceeded for action %q", action))
	}
	return d, nil
}

// SQLAdapter backs the limiter with internal/db's rate_limit table — the
// default production adapter. Each debit commits on its own, outside any
// transaction of the record write it guards. The first debit of a new
// window also deletes buckets whose window has ended.
type SQLAdapter struct {
	DB *db.DB
}

func NewSQLAdapter(database *db.DB) *SQLAdapter { return &SQLAdapter{DB: database} }

func (a *SQLAdapter) Increment(ctx context.Context, identifier string, action Action, windowStart, windowEnd time.Time) (int, error) {
	count, err := a.DB.IncrementRateBucket(ctx, a.DB.SQL, identifier, string(action), windowStart, windowEnd)
	if err == nil && count == 1 {
		_ = a.DB.GCExpiredBuckets(ctx, windowStart)
	}
	return count, err
}

// IncrementTx runs the same debit on a caller-supplied Querier (such as a
// *sql.Tx); no handler in this repository calls it.
func IncrementTx(ctx context.Context, database *db.DB, q db.Querier, identifier string, action Action, windowStart, windowEnd time.Time) (int, error) {
	return database.IncrementRateBucket(ctx, q, identifier, string(action), windowStart, windowEnd)
}

// InMemoryAdapter is a single-process bucket store for tests and for
// deployments that accept losing counters on restart.
type InMemoryAdapter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	windowStart time.Time
	count       int
}

func NewInMemoryAdapter() *InMemoryAdapter {
	return &InMemoryAdapter{buckets: map[string]*bucket{}}
}

func (a *InMemoryAdapter) Increment(_ context.Context, identifier string, action Action, windowStart, _ time.Time) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := identifier + "|" + string(action)
	b, ok := a.buckets[key]
	if !ok || !b.windowStart.Equal(windowStart) {
		b = &bucket{windowStart: windowStart, count: 0}
		a.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

// NoneAdapter disables rate limiting entirely (spec.md's "none" adapter).
type NoneAdapter struct{}

func (NoneAdapter) Increment(context.Context, string, Action, time.Time, time.Time) (int, error) {
	return 0, nil
}
