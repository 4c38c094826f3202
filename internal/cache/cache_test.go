package cache

import (
	"context"
	"testing"
	"time"

	"github.com/webpods-org/webpods/internal/db"
)

func TestPoolGetOrLoadCollapsesMisses(t *testing.T) {
	backend := NewInMemoryBackend()
	pool := NewPool[*db.Pod](backend, time.Minute)
	ctx := context.Background()

	calls := 0
	load := func() (*db.Pod, error) {
		calls++
		return &db.Pod{Name: "alice"}, nil
	}

	p1, err := pool.GetOrLoad(ctx, "alice", load)
	if err != nil {
		t.Fatalf("GetOrLoad 1: %v", err)
	}
	if p1.Name != "alice" {
		t.Errorf("got %+v", p1)
	}

	p2, err := pool.GetOrLoad(ctx, "alice", load)
	if err != nil {
		t.Fatalf("GetOrLoad 2: %v", err)
	}
	if p2.Name != "alice" {
		t.Errorf("got %+v", p2)
	}
	if calls != 1 {
		t.Errorf("expected loader called once (cached second time), got %d", calls)
	}
}

func TestInvalidateStreamClearsDependentKeys(t *testing.T) {
	backend := NewInMemoryBackend()
	c := New(backend, PoolTTLs{PodsSeconds: 30, StreamsSeconds: 30, SingleRecordsSeconds: 30, RecordListsSeconds: 30})
	ctx := context.Background()

	c.Streams.Set(ctx, StreamKey("alice", "blog"), &db.Stream{ID: "s1", PodName: "alice", Path: "blog"})
	c.SingleRecords.Set(ctx, RecordKey("s1", "first"), &db.Record{ID: "r1"})
	c.RecordLists.Set(ctx, RecordListKey("s1", false, 10, 0), []*db.Record{{ID: "r1"}})

	c.InvalidateStream(ctx, "alice", "blog", "s1")

	if _, ok := c.Streams.Get(ctx, StreamKey("alice", "blog")); ok {
		t.Error("expected stream entry to be invalidated")
	}
	if _, ok := c.SingleRecords.Get(ctx, RecordKey("s1", "first")); ok {
		t.Error("expected record entry to be invalidated")
	}
	if _, ok := c.RecordLists.Get(ctx, RecordListKey("s1", false, 10, 0)); ok {
		t.Error("expected record list entry to be invalidated")
	}
}

func TestInvalidatePodClearsStreamsUnderIt(t *testing.T) {
	backend := NewInMemoryBackend()
	c := New(backend, PoolTTLs{PodsSeconds: 30, StreamsSeconds: 30, SingleRecordsSeconds: 30, RecordListsSeconds: 30})
	ctx := context.Background()

	c.Pods.Set(ctx, PodKey("alice"), &db.Pod{Name: "alice"})
	c.Streams.Set(ctx, StreamKey("alice", "blog"), &db.Stream{ID: "s1"})
	c.Streams.Set(ctx, StreamKey("bob", "blog"), &db.Stream{ID: "s2"})

	c.InvalidatePod(ctx, "alice")

	if _, ok := c.Pods.Get(ctx, PodKey("alice")); ok {
		t.Error("expected pod entry invalidated")
	}
	if _, ok := c.Streams.Get(ctx, StreamKey("alice", "blog")); ok {
		t.Error("expected alice's stream entries invalidated")
	}
	if _, ok := c.Streams.Get(ctx, StreamKey("bob", "blog")); !ok {
		t.Error("bob's stream entries should be unaffected")
	}
}
