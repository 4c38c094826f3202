package permission

import (
	"context"
	"testing"
	"time"

	"github.com/webpods-org/webpods/internal/db"
)

func setupPod(t *testing.T) (*db.DB, *Resolver) {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	now := time.Now()
	if err := database.CreatePod(ctx, "alice-pod", now); err != nil {
		t.Fatalf("CreatePod: %v", err)
	}
	return database, New(database)
}

func appendOwner(t *testing.T, database *db.DB, podName, userID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	ownerStream := &db.Stream{
		ID: "owner-stream", PodName: podName, Name: "owner", Path: ownerStreamPath,
		UserID: userID, AccessPermission: "private", Metadata: "{}", CreatedAt: now, UpdatedAt: now,
	}
	if err := database.CreateStream(ctx, ownerStream); err != nil {
		t.Fatalf("create owner stream: %v", err)
	}
	rec := &db.Record{
		ID: "owner-rec-0", StreamID: ownerStream.ID, Index: 0, Name: "owner",
		Path: ownerStreamPath + "/owner", Content: []byte(`{"userId":"` + userID + `"}`),
		ContentType: "application/json", ContentHash: "h", Hash: "h0", UserID: userID,
		Headers: "{}", CreatedAt: now,
	}
	if err := database.InsertRecord(ctx, database.SQL, rec); err != nil {
		t.Fatalf("insert owner record: %v", err)
	}
}

func TestOwnerHasFullAccess(t *testing.T) {
	ctx := context.Background()
	database, resolver := setupPod(t)
	appendOwner(t, database, "alice-pod", "alice")

	now := time.Now()
	s := &db.Stream{ID: "s1", PodName: "alice-pod", Name: "priv", Path: "priv", UserID: "bob",
		AccessPermission: "private", Metadata: "{}", CreatedAt: now, UpdatedAt: now}
	if err := database.CreateStream(ctx, s); err != nil {
		t.Fatalf("create stream: %v", err)
	}

	ok, err := resolver.CanRead(ctx, s, "alice")
	if err != nil {
		t.Fatalf("CanRead: %v", err)
	}
	if !ok {
		t.Error("owner should be able to read any stream")
	}
	ok, err = resolver.CanWrite(ctx, s, "alice")
	if err != nil {
		t.Fatalf("CanWrite: %v", err)
	}
	if !ok {
		t.Error("owner should be able to write any stream")
	}
}

func TestPrivateStreamDeniesOthers(t *testing.T) {
	ctx := context.Background()
	database, resolver := setupPod(t)
	appendOwner(t, database, "alice-pod", "alice")

	now := time.Now()
	s := &db.Stream{ID: "s1", PodName: "alice-pod", Name: "priv", Path: "priv", UserID: "bob",
		AccessPermission: "private", Metadata: "{}", CreatedAt: now, UpdatedAt: now}
	_ = database.CreateStream(ctx, s)

	ok, err := resolver.CanRead(ctx, s, "carol")
	if err != nil {
		t.Fatalf("CanRead: %v", err)
	}
	if ok {
		t.Error("carol should not be able to read bob's private stream")
	}

	ok, err = resolver.CanRead(ctx, s, "bob")
	if err != nil {
		t.Fatalf("CanRead creator: %v", err)
	}
	if ok {
		t.Error("a creator who is not the pod owner should not be able to read the private stream")
	}
}

func TestPublicStreamAllowsReadAndAuthenticatedWrite(t *testing.T) {
	ctx := context.Background()
	database, resolver := setupPod(t)
	appendOwner(t, database, "alice-pod", "alice")

	now := time.Now()
	s := &db.Stream{ID: "s1", PodName: "alice-pod", Name: "blog", Path: "blog", UserID: "alice",
		AccessPermission: "public", Metadata: "{}", CreatedAt: now, UpdatedAt: now}
	_ = database.CreateStream(ctx, s)

	ok, _ := resolver.CanRead(ctx, s, "")
	if !ok {
		t.Error("public stream should be readable by anonymous users")
	}
	ok, _ = resolver.CanWrite(ctx, s, "")
	if ok {
		t.Error("public stream should not be writable by anonymous users")
	}
	ok, _ = resolver.CanWrite(ctx, s, "dave")
	if !ok {
		t.Error("public stream should be writable by any authenticated user")
	}
}

func TestPermissionStreamGrantsAccess(t *testing.T) {
	ctx := context.Background()
	database, resolver := setupPod(t)
	appendOwner(t, database, "alice-pod", "alice")

	now := time.Now()
	permStream := &db.Stream{ID: "perm1", PodName: "alice-pod", Name: "team-perms", Path: "team-perms",
		UserID: "alice", AccessPermission: "private", Metadata: "{}", CreatedAt: now, UpdatedAt: now}
	_ = database.CreateStream(ctx, permStream)
	grant := &db.Record{ID: "g0", StreamID: "perm1", Index: 0, Name: "xavier",
		Path: "team-perms/xavier", Content: []byte(`{"id":"xavier","read":true,"write":false}`),
		ContentType: "application/json", ContentHash: "h", Hash: "h0", UserID: "alice",
		Headers: "{}", CreatedAt: now}
	_ = database.InsertRecord(ctx, database.SQL, grant)

	s := &db.Stream{ID: "s2", PodName: "alice-pod", Name: "priv", Path: "priv", UserID: "alice",
		AccessPermission: "/team-perms", Metadata: "{}", CreatedAt: now, UpdatedAt: now}
	_ = database.CreateStream(ctx, s)

	ok, err := resolver.CanRead(ctx, s, "xavier")
	if err != nil {
		t.Fatalf("CanRead: %v", err)
	}
	if !ok {
		t.Error("xavier should be granted read via permission stream")
	}
	ok, err = resolver.CanWrite(ctx, s, "xavier")
	if err != nil {
		t.Fatalf("CanWrite: %v", err)
	}
	if ok {
		t.Error("xavier should not be granted write")
	}
}

func TestConfigStreamsOwnerOnlyWrite(t *testing.T) {
	ctx := context.Background()
	database, resolver := setupPod(t)
	appendOwner(t, database, "alice-pod", "alice")

	now := time.Now()
	routing := &db.Stream{ID: "cfg1", PodName: "alice-pod", Name: "routing", Path: ".config/routing",
		UserID: "alice", AccessPermission: "public", Metadata: "{}", CreatedAt: now, UpdatedAt: now}
	_ = database.CreateStream(ctx, routing)

	ok, err := resolver.CanWrite(ctx, routing, "alice")
	if err != nil {
		t.Fatalf("CanWrite owner: %v", err)
	}
	if !ok {
		t.Error("owner should be able to write .config/* even if public")
	}

	ok, err = resolver.CanWrite(ctx, routing, "bob")
	if err != nil {
		t.Fatalf("CanWrite bob: %v", err)
	}
	if ok {
		t.Error(".config/* must be owner-only for writes regardless of accessPermission")
	}
}
