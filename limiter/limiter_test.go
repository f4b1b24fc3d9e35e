package limiter

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestLocalLimiterBurst(t *testing.T) {
	l := NewLocalLimiter(rate.Limit(1), 2)
	ctx := context.Background()
	for i := range 2 {
		if ok, _ := l.Allow(ctx, ""); !ok {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	if ok, _ := l.Allow(ctx, ""); ok {
		t.Error("request beyond burst allowed")
	}
}

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	l := NewKeyedLimiter(rate.Limit(1), 1, time.Minute)
	ctx := context.Background()
	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Fatal("first request for a rejected")
	}
	if ok, _ := l.Allow(ctx, "a"); ok {
		t.Error("second request for a allowed")
	}
	if ok, _ := l.Allow(ctx, "b"); !ok {
		t.Error("b should have its own bucket")
	}
}

func TestKeyedLimiterSweepsIdle(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewKeyedLimiter(rate.Limit(1), 1, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	if l.Len() != 2 {
		t.Fatalf("len = %d", l.Len())
	}

	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(ctx, "c")
	if l.Len() != 1 {
		t.Errorf("idle buckets not swept, len = %d", l.Len())
	}
}
