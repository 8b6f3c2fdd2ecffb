package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/exuberant-im/exuberant/internal/kv"
)

func newTestLimiter(t *testing.T, buckets map[string]Bucket) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, New(kv.New(client, time.Second), buckets)
}

func TestAllowWithinWindow(t *testing.T) {
	_, lim := newTestLimiter(t, map[string]Bucket{
		"login": {Max: 3, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := lim.Allow(ctx, "login", "203.0.113.1"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := lim.Allow(ctx, "login", "203.0.113.1"); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}
}

func TestWindowResets(t *testing.T) {
	mr, lim := newTestLimiter(t, map[string]Bucket{
		"login": {Max: 1, Window: time.Minute},
	})
	ctx := context.Background()

	if err := lim.Allow(ctx, "login", "o"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := lim.Allow(ctx, "login", "o"); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected ErrLimited, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)

	if err := lim.Allow(ctx, "login", "o"); err != nil {
		t.Fatalf("attempt after window: %v", err)
	}
}

func TestOriginsAreIndependent(t *testing.T) {
	_, lim := newTestLimiter(t, map[string]Bucket{
		"send": {Max: 1, Window: time.Minute},
	})
	ctx := context.Background()

	if err := lim.Allow(ctx, "send", "a"); err != nil {
		t.Fatalf("origin a: %v", err)
	}
	if err := lim.Allow(ctx, "send", "b"); err != nil {
		t.Fatalf("origin b throttled by a: %v", err)
	}
}

func TestEmptyOriginSkips(t *testing.T) {
	_, lim := newTestLimiter(t, map[string]Bucket{
		"send": {Max: 1, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := lim.Allow(ctx, "send", ""); err != nil {
			t.Fatalf("empty origin attempt %d: %v", i, err)
		}
	}
}

func TestUnknownBucket(t *testing.T) {
	_, lim := newTestLimiter(t, map[string]Bucket{})

	if err := lim.Allow(context.Background(), "nope", "o"); err == nil {
		t.Fatal("expected error for unknown bucket")
	}
}

func TestReset(t *testing.T) {
	_, lim := newTestLimiter(t, map[string]Bucket{
		"login": {Max: 1, Window: time.Minute},
	})
	ctx := context.Background()

	if err := lim.Allow(ctx, "login", "o"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := lim.Reset(ctx, "login", "o"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := lim.Allow(ctx, "login", "o"); err != nil {
		t.Fatalf("attempt after reset: %v", err)
	}
}
