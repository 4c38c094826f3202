package pathresolve

import (
	"context"
	"testing"
)

func fakeExists(streams map[string]bool) StreamExists {
	return func(_ context.Context, podName, streamPath string) (bool, error) {
		return streams[podName+"/"+streamPath], nil
	}
}

func TestResolveReadWholeStream(t *testing.T) {
	exists := fakeExists(map[string]bool{"alice/blog/posts": true})
	res, err := ResolveRead(context.Background(), exists, "alice", "blog/posts", false)
	if err != nil {
		t.Fatalf("ResolveRead: %v", err)
	}
	if !res.IsStream || res.StreamPath != "blog/posts" || res.RecordName != "" {
		t.Errorf("got %+v", res)
	}
}

func TestResolveReadPopsRecordName(t *testing.T) {
	exists := fakeExists(map[string]bool{"alice/blog/posts": true})
	res, err := ResolveRead(context.Background(), exists, "alice", "blog/posts/first", false)
	if err != nil {
		t.Fatalf("ResolveRead: %v", err)
	}
	if res.IsStream || res.StreamPath != "blog/posts" || res.RecordName != "first" {
		t.Errorf("got %+v", res)
	}
}

func TestResolveReadMissingStreamErrors(t *testing.T) {
	exists := fakeExists(map[string]bool{})
	_, err := ResolveRead(context.Background(), exists, "alice", "nope/first", false)
	if err == nil {
		t.Fatal("expected error for missing prefix stream")
	}
}

func TestResolveWriteAlwaysSplitsLastSegment(t *testing.T) {
	streamPath, name, err := ResolveWrite("blog/posts/first")
	if err != nil {
		t.Fatalf("ResolveWrite: %v", err)
	}
	if streamPath != "blog/posts" || name != "first" {
		t.Errorf("got (%q, %q)", streamPath, name)
	}
}

func TestResolveWriteRejectsInvalidName(t *testing.T) {
	_, _, err := ResolveWrite("blog/.leadingdot")
	if err == nil {
		t.Fatal("expected invalid name error")
	}
}

func TestParseIndexSpecSingle(t *testing.T) {
	spec, err := ParseIndexSpec("-1")
	if err != nil {
		t.Fatalf("ParseIndexSpec: %v", err)
	}
	if spec.IsRange || spec.Index != -1 {
		t.Errorf("got %+v", spec)
	}
}

func TestParseIndexSpecRange(t *testing.T) {
	spec, err := ParseIndexSpec("2:5")
	if err != nil {
		t.Fatalf("ParseIndexSpec: %v", err)
	}
	if !spec.IsRange || spec.Start != 2 || spec.End != 5 {
		t.Errorf("got %+v", spec)
	}
}

func TestResolveIndexNegative(t *testing.T) {
	idx, err := ResolveIndex(-1, 5)
	if err != nil {
		t.Fatalf("ResolveIndex: %v", err)
	}
	if idx != 4 {
		t.Errorf("got %d, want 4", idx)
	}

	_, err = ResolveIndex(-6, 5)
	if err == nil {
		t.Fatal("expected out-of-range error for i=-N-1")
	}
}
