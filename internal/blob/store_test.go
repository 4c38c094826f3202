package blob

import (
	"context"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir(), "", 0)

	if err := s.Put(ctx, "alice", "blog/posts", "hash1", []byte("hello world")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "alice", "blog/posts", "hash1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir(), "", 0)
	_, err := s.Get(ctx, "alice", "blog/posts", "missing")
	if err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesContent(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir(), "", 0)
	if err := s.Put(ctx, "alice", "blog", "hash2", []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, "alice", "blog", "hash2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "alice", "blog", "hash2"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedirectURLDisabledWithoutCDNBase(t *testing.T) {
	s := New(t.TempDir(), "", 0)
	if _, ok := s.RedirectURL("alice", "blog", "hash1"); ok {
		t.Error("expected no redirect URL without a CDN base configured")
	}
}

func TestRedirectURLBuildsFromCDNBase(t *testing.T) {
	s := New(t.TempDir(), "https://cdn.example.com/blobs", 0)
	url, ok := s.RedirectURL("alice", "blog/posts", "hash1")
	if !ok {
		t.Fatal("expected redirect URL when CDN base is configured")
	}
	want := "https://cdn.example.com/blobs/alice/blog/posts/hash1"
	if url != want {
		t.Errorf("got %q, want %q", url, want)
	}
}
