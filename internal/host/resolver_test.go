package host

import (
	"context"
	"net/http"
	"testing"
)

func TestResolveMainDomain(t *testing.T) {
	r := New("webpods.example", "", nil)
	req := &http.Request{Host: "webpods.example"}
	res := r.Resolve(context.Background(), req)
	if !res.IsMainDomain || res.PodName != "" {
		t.Errorf("got %+v", res)
	}
}

func TestResolveSubdomainLabel(t *testing.T) {
	r := New("webpods.example", "", nil)
	req := &http.Request{Host: "alice.webpods.example:8080"}
	res := r.Resolve(context.Background(), req)
	if res.IsMainDomain || res.PodName != "alice" {
		t.Errorf("got %+v", res)
	}
}

func TestResolveCustomDomain(t *testing.T) {
	lookup := func(_ context.Context, domain string) (string, bool) {
		if domain == "blog.alice.com" {
			return "alice", true
		}
		return "", false
	}
	r := New("webpods.example", "", lookup)
	req := &http.Request{Host: "blog.alice.com"}
	res := r.Resolve(context.Background(), req)
	if res.PodName != "alice" {
		t.Errorf("got %+v", res)
	}
}

func TestResolveDevHeaderOverride(t *testing.T) {
	r := New("webpods.example", "", nil)
	req := &http.Request{Host: "localhost:3000", Header: http.Header{"X-Pod-Name": []string{"devpod"}}}
	res := r.Resolve(context.Background(), req)
	if res.PodName != "devpod" {
		t.Errorf("got %+v", res)
	}
}

func TestResolveRootPodFallback(t *testing.T) {
	r := New("webpods.example", "landing", nil)
	req := &http.Request{Host: "unknown.com"}
	res := r.Resolve(context.Background(), req)
	if res.PodName != "landing" {
		t.Errorf("got %+v", res)
	}
}
