package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/exuberant-im/exuberant/internal/kv"
)

// Bucket describes a fixed-window budget for one class of requests.
type Bucket struct {
	Max    int
	Window time.Duration
}

// Limiter enforces per-origin fixed windows for named request buckets.
// Origins are opaque identities (client IP, normalized email, ticket ID).
type Limiter struct {
	kv      *kv.Gateway
	buckets map[string]Bucket
}

// New creates a [Limiter] over the given gateway. buckets maps bucket names
// to their budgets; unknown buckets are rejected at call time.
func New(gateway *kv.Gateway, buckets map[string]Bucket) *Limiter {
	cloned := make(map[string]Bucket, len(buckets))
	for name, b := range buckets {
		cloned[name] = b
	}
	return &Limiter{kv: gateway, buckets: cloned}
}

// Allow records one attempt for (bucket, origin) and reports whether it is
// within budget. The attempt is counted before the verdict, so exhausted
// windows reject regardless of what the request would have done.
func (l *Limiter) Allow(ctx context.Context, bucket, origin string) error {
	if origin == "" {
		return nil
	}

	b, ok := l.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: unknown bucket %q", ErrUnavailable, bucket)
	}
	if b.Max <= 0 {
		return nil
	}

	count, err := l.kv.Incr(ctx, counterKey(bucket, origin))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: only the first hit in the window sets the TTL.
	if count == 1 {
		if err := l.kv.Expire(ctx, counterKey(bucket, origin), b.Window); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(b.Max) {
		return ErrLimited
	}
	return nil
}

// Reset clears the counter for (bucket, origin). Called after a definitive
// success (e.g. login) so honest clients do not inherit failure debt.
func (l *Limiter) Reset(ctx context.Context, bucket, origin string) error {
	if origin == "" {
		return nil
	}
	if err := l.kv.Del(ctx, counterKey(bucket, origin)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Attempts returns the live counter for (bucket, origin). Missing keys
// return zero and do not reveal origin existence.
func (l *Limiter) Attempts(ctx context.Context, bucket, origin string) (int, error) {
	val, err := l.kv.Get(ctx, counterKey(bucket, origin))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var count int
	if _, err := fmt.Sscanf(val, "%d", &count); err != nil || count < 0 {
		return 0, nil
	}
	return count, nil
}

func counterKey(bucket, origin string) string {
	return "rl:" + bucket + ":" + origin
}
