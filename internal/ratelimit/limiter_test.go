package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterUnderLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(5, 15*time.Minute)

	for i := 0; i < 4; i++ {
		if err := l.RecordFailure(ctx, "e@x.com"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	ok, err := l.Allowed(ctx, "e@x.com")
	if err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if !ok {
		t.Fatal("four failures must not block a fifth attempt")
	}
}

func TestMemoryLimiterBlocksAtLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(5, 15*time.Minute)

	for i := 0; i < 5; i++ {
		if err := l.RecordFailure(ctx, "e@x.com"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	ok, _ := l.Allowed(ctx, "e@x.com")
	if ok {
		t.Fatal("five failures must block the next attempt")
	}

	// Another account is unaffected.
	ok, _ = l.Allowed(ctx, "other@x.com")
	if !ok {
		t.Fatal("limit must be tracked per account")
	}
}

func TestMemoryLimiterWindowExpiry(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(5, 15*time.Minute).(*memoryLimiter)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	l.now = func() time.Time { return current }

	for i := 0; i < 5; i++ {
		if err := l.RecordFailure(ctx, "e@x.com"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if ok, _ := l.Allowed(ctx, "e@x.com"); ok {
		t.Fatal("account must be blocked inside the window")
	}

	// The window is anchored to the first failure.
	current = base.Add(15 * time.Minute)
	if ok, _ := l.Allowed(ctx, "e@x.com"); !ok {
		t.Fatal("window elapsed, attempt must be allowed")
	}

	// A failure after expiry opens a fresh window with count one.
	if err := l.RecordFailure(ctx, "e@x.com"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if ok, _ := l.Allowed(ctx, "e@x.com"); !ok {
		t.Fatal("one failure in the new window must not block")
	}
}

func TestMemoryLimiterReset(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(5, 15*time.Minute)

	for i := 0; i < 5; i++ {
		if err := l.RecordFailure(ctx, "e@x.com"); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if err := l.Reset(ctx, "e@x.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ok, _ := l.Allowed(ctx, "e@x.com"); !ok {
		t.Fatal("reset must clear the window")
	}
}
