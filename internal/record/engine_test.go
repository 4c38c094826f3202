package record

import (
	"context"
	"testing"
	"time"

	"github.com/webpods-org/webpods/internal/db"
)

type fakeBlobStore struct {
	data map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore { return &fakeBlobStore{data: map[string][]byte{}} }

func (f *fakeBlobStore) key(pod, streamPath, hash string) string { return pod + "/" + streamPath + "/" + hash }

func (f *fakeBlobStore) Put(_ context.Context, pod, streamPath, hash string, content []byte) error {
	f.data[f.key(pod, streamPath, hash)] = content
	return nil
}

func (f *fakeBlobStore) Get(_ context.Context, pod, streamPath, hash string) ([]byte, error) {
	return f.data[f.key(pod, streamPath, hash)], nil
}

func (f *fakeBlobStore) Delete(_ context.Context, pod, streamPath, hash string) error {
	delete(f.data, f.key(pod, streamPath, hash))
	return nil
}

func setupEngine(t *testing.T, externalThreshold uint64) (*Engine, *db.Stream) {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	now := time.Now()
	if err := database.CreatePod(ctx, "alice", now); err != nil {
		t.Fatalf("CreatePod: %v", err)
	}
	s := &db.Stream{
		ID: "s1", PodName: "alice", Name: "posts", Path: "blog/posts", UserID: "alice",
		AccessPermission: "private", Metadata: "{}", CreatedAt: now, UpdatedAt: now,
	}
	if err := database.CreateStream(ctx, s); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}

	blob := newFakeBlobStore()
	eng := New(database, blob, nil, externalThreshold, 1000)
	return eng, s
}

func TestAppendChainsHashes(t *testing.T) {
	ctx := context.Background()
	eng, stream := setupEngine(t, 0)

	r1, err := eng.Append(ctx, AppendInput{Stream: stream, UserID: "alice", Name: "first", Content: []byte("hello"), ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if r1.Index != 0 {
		t.Errorf("got index %d, want 0", r1.Index)
	}
	if r1.PreviousHash != nil {
		t.Errorf("expected nil previous hash for first record")
	}

	r2, err := eng.Append(ctx, AppendInput{Stream: stream, UserID: "alice", Name: "second", Content: []byte("world"), ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if r2.Index != 1 {
		t.Errorf("got index %d, want 1", r2.Index)
	}
	if r2.PreviousHash == nil || *r2.PreviousHash != r1.Hash {
		t.Errorf("expected r2 previousHash to equal r1 hash")
	}
}

func TestAppendOffloadsLargeContentToBlob(t *testing.T) {
	ctx := context.Background()
	eng, stream := setupEngine(t, 4) // threshold of 4 bytes

	rec, err := eng.Append(ctx, AppendInput{Stream: stream, UserID: "alice", Name: "big", Content: []byte("this is long content"), ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if rec.Storage == nil || *rec.Storage != "blob" {
		t.Fatalf("expected storage=blob, got %v", rec.Storage)
	}
	if string(rec.Content) != "this is long content" {
		t.Errorf("expected hydrated content, got %q", rec.Content)
	}

	got, err := eng.GetByName(ctx, stream, "big")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if string(got.Content) != "this is long content" {
		t.Errorf("expected rehydrated content on read, got %q", got.Content)
	}
}

func TestSoftDeleteMasksLatestRead(t *testing.T) {
	ctx := context.Background()
	eng, stream := setupEngine(t, 0)

	if _, err := eng.Append(ctx, AppendInput{Stream: stream, UserID: "alice", Name: "note", Content: []byte("v1"), ContentType: "text/plain"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := eng.SoftDelete(ctx, stream, "alice", "note"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := eng.GetByName(ctx, stream, "note"); err == nil {
		t.Fatal("expected not-found after soft delete")
	}

	// Appending again should resurrect it.
	if _, err := eng.Append(ctx, AppendInput{Stream: stream, UserID: "alice", Name: "note", Content: []byte("v2"), ContentType: "text/plain"}); err != nil {
		t.Fatalf("append after delete: %v", err)
	}
	got, err := eng.GetByName(ctx, stream, "note")
	if err != nil {
		t.Fatalf("GetByName after resurrect: %v", err)
	}
	if string(got.Content) != "v2" {
		t.Errorf("got %q, want v2", got.Content)
	}
}

func TestPurgeClearsContentButKeepsChain(t *testing.T) {
	ctx := context.Background()
	eng, stream := setupEngine(t, 0)

	rec, err := eng.Append(ctx, AppendInput{Stream: stream, UserID: "alice", Name: "secret", Content: []byte("sensitive"), ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := eng.Purge(ctx, stream, "secret"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	purged, err := eng.GetByIndex(ctx, stream, rec.Index)
	if err != nil {
		t.Fatalf("get by index after purge: %v", err)
	}
	if len(purged.Content) != 0 {
		t.Errorf("expected empty content after purge, got %q", purged.Content)
	}
	if purged.Hash != rec.Hash {
		t.Errorf("purge must not alter the hash chain")
	}
}

func TestListUniqueReturnsLatestPerName(t *testing.T) {
	ctx := context.Background()
	eng, stream := setupEngine(t, 0)

	for _, v := range []string{"v1", "v2", "v3"} {
		if _, err := eng.Append(ctx, AppendInput{Stream: stream, UserID: "alice", Name: "counter", Content: []byte(v), ContentType: "text/plain"}); err != nil {
			t.Fatalf("append %s: %v", v, err)
		}
	}
	if _, err := eng.Append(ctx, AppendInput{Stream: stream, UserID: "alice", Name: "other", Content: []byte("x"), ContentType: "text/plain"}); err != nil {
		t.Fatalf("append other: %v", err)
	}

	recs, err := eng.ListUnique(ctx, stream, 10, 0)
	if err != nil {
		t.Fatalf("ListUnique: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d unique records, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Name == "counter" && string(r.Content) != "v3" {
			t.Errorf("expected latest counter value v3, got %q", r.Content)
		}
	}
}

func TestNegativeAfterResolvesFromEnd(t *testing.T) {
	ctx := context.Background()
	eng, stream := setupEngine(t, 0)
	for i := 0; i < 5; i++ {
		if _, err := eng.Append(ctx, AppendInput{Stream: stream, UserID: "alice", Name: "n", Content: []byte("x"), ContentType: "text/plain"}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	recs, err := eng.List(ctx, stream, 10, -2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Index != 3 || recs[1].Index != 4 {
		t.Errorf("got indices %d,%d, want 3,4", recs[0].Index, recs[1].Index)
	}
}
