package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWindowTruncatesToHour(t *testing.T) {
	now := time.Date(2026, 7, 31, 14, 23, 10, 0, time.UTC)
	start, end := Window(now)
	wantEnd := time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC)
	wantStart := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	if !end.Equal(wantEnd) || !start.Equal(wantStart) {
		t.Errorf("got start=%v end=%v, want start=%v end=%v", start, end, wantStart, wantEnd)
	}
}

func TestAdmitAllowsUnderLimit(t *testing.T) {
	l := New(NewInMemoryAdapter(), Limits{Write: 2})
	ctx := context.Background()
	d, err := l.Admit(ctx, "alice", ActionWrite)
	if err != nil {
		t.Fatalf("admit 1: %v", err)
	}
	if !d.Allowed || d.Remaining != 1 {
		t.Errorf("got %+v", d)
	}
	d, err = l.Admit(ctx, "alice", ActionWrite)
	if err != nil {
		t.Fatalf("admit 2: %v", err)
	}
	if !d.Allowed || d.Remaining != 0 {
		t.Errorf("got %+v", d)
	}
}

func TestAdmitRejectsOverLimit(t *testing.T) {
	l := New(NewInMemoryAdapter(), Limits{Write: 1})
	ctx := context.Background()
	if _, err := l.Admit(ctx, "bob", ActionWrite); err != nil {
		t.Fatalf("admit 1: %v", err)
	}
	_, err := l.Admit(ctx, "bob", ActionWrite)
	if err == nil {
		t.Fatal("expected rate limit error on second admit")
	}
}

func TestAdmitZeroLimitMeansUnlimited(t *testing.T) {
	l := New(NewInMemoryAdapter(), Limits{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d, err := l.Admit(ctx, "carol", ActionRead)
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		if !d.Allowed {
			t.Errorf("expected unlimited admission when limit unset")
		}
	}
}
