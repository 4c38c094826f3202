package db

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestPodCreateAndGet(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	now := time.Now()
	if err := d.CreatePod(ctx, "alice", now); err != nil {
		t.Fatalf("CreatePod: %v", err)
	}

	pod, err := d.GetPod(ctx, "alice")
	if err != nil {
		t.Fatalf("GetPod: %v", err)
	}
	if pod.Name != "alice" {
		t.Errorf("got name %q", pod.Name)
	}

	if _, err := d.GetPod(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestStreamUniqueAndLookup(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	now := time.Now()
	_ = d.CreatePod(ctx, "alice", now)

	s := &Stream{
		ID: "s1", PodName: "alice", ParentID: nil, Name: "blog", Path: "blog",
		UserID: "alice", AccessPermission: "private", Metadata: "{}",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := d.CreateStream(ctx, s); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}

	got, err := d.GetStreamByPath(ctx, "alice", "blog")
	if err != nil {
		t.Fatalf("GetStreamByPath: %v", err)
	}
	if got.ID != "s1" {
		t.Errorf("got id %q", got.ID)
	}

	dup := &Stream{ID: "s2", PodName: "alice", ParentID: nil, Name: "blog", Path: "blog",
		UserID: "alice", AccessPermission: "private", Metadata: "{}", CreatedAt: now, UpdatedAt: now}
	if err := d.CreateStream(ctx, dup); err == nil {
		t.Fatal("expected unique constraint violation")
	}
}

func TestAppendRecordChain(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	now := time.Now()
	_ = d.CreatePod(ctx, "alice", now)
	s := &Stream{ID: "s1", PodName: "alice", Name: "posts", Path: "blog/posts", UserID: "alice",
		AccessPermission: "private", Metadata: "{}", CreatedAt: now, UpdatedAt: now}
	_ = d.CreateStream(ctx, s)

	var lastHash *string
	for i := 0; i < 3; i++ {
		err := d.WithStreamLock(ctx, "s1", func(tx *sql.Tx) error {
			last, err := d.GetLastRecord(ctx, tx, "s1")
			idx := int64(0)
			var prevHash *string
			if err == nil {
				idx = last.Index + 1
				prevHash = &last.Hash
			} else if err != ErrNotFound {
				return err
			}
			hash := "hash" + string(rune('0'+i))
			rec := &Record{
				ID: "r" + string(rune('0'+i)), StreamID: "s1", Index: idx, Name: "first",
				Path: "blog/posts/first", Content: []byte("v"), ContentType: "text/plain",
				ContentHash: "ch", Hash: hash, PreviousHash: prevHash, UserID: "alice",
				Headers: "{}", CreatedAt: now,
			}
			lastHash = &hash
			return d.InsertRecord(ctx, tx, rec)
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := d.GetLatestByName(ctx, "s1", "first")
	if err != nil {
		t.Fatalf("GetLatestByName: %v", err)
	}
	if got.Index != 2 {
		t.Errorf("got index %d, want 2", got.Index)
	}
	if lastHash != nil && got.Hash != *lastHash {
		t.Errorf("got hash %q, want %q", got.Hash, *lastHash)
	}

	count, err := d.CountRecords(ctx, "s1")
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if count != 3 {
		t.Errorf("got count %d, want 3", count)
	}
}

func TestRateBucketUpsertIncrements(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	now := time.Now().UTC()
	windowEnd := now.Add(time.Hour).Truncate(time.Hour)
	windowStart := windowEnd.Add(-time.Hour)

	c1, err := d.IncrementRateBucket(ctx, d.SQL, "alice", "write", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("increment 1: %v", err)
	}
	if c1 != 1 {
		t.Errorf("got %d, want 1", c1)
	}

	c2, err := d.IncrementRateBucket(ctx, d.SQL, "alice", "write", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("increment 2: %v", err)
	}
	if c2 != 2 {
		t.Errorf("got %d, want 2", c2)
	}
}
