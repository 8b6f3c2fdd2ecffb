package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: key not found")

// ErrUnavailable is returned for transport failures and timeouts. Callers
// must treat it as "outcome unknown", not as "operation did not happen".
var ErrUnavailable = errors.New("kv: store unavailable")

const defaultOpTimeout = 2 * time.Second

// Gateway issues bounded single-key commands against the remote store.
type Gateway struct {
	redis     redis.UniversalClient
	opTimeout time.Duration
}

// New creates a [Gateway] backed by the given Redis client. opTimeout bounds
// every individual store call; zero selects a conservative default.
func New(client redis.UniversalClient, opTimeout time.Duration) *Gateway {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Gateway{redis: client, opTimeout: opTimeout}
}

func (g *Gateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.opTimeout)
}

func wrap(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Get returns the string value at key or [ErrNotFound].
func (g *Gateway) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	val, err := g.redis.Get(ctx, key).Result()
	if err != nil {
		return "", wrap(err)
	}
	return val, nil
}

// GetBytes returns the raw value at key or [ErrNotFound].
func (g *Gateway) GetBytes(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	val, err := g.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, wrap(err)
	}
	return val, nil
}

// Set writes value at key. ttl <= 0 stores the key without expiry.
func (g *Gateway) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := g.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// Del removes keys. Missing keys are not an error.
func (g *Gateway) Del(ctx context.Context, keys ...string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	if err := g.redis.Del(ctx, keys...).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// Incr atomically increments the integer at key and returns the new value.
// This is the sole cross-handler serialization point in the system.
func (g *Gateway) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	count, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return count, nil
}

// Expire sets the TTL on an existing key.
func (g *Gateway) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	if err := g.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// RPush appends values to the list at key.
func (g *Gateway) RPush(ctx context.Context, key string, values ...any) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	if err := g.redis.RPush(ctx, key, values...).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// LPush prepends values to the list at key.
func (g *Gateway) LPush(ctx context.Context, key string, values ...any) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	if err := g.redis.LPush(ctx, key, values...).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// LRem removes all occurrences of value from the list at key.
func (g *Gateway) LRem(ctx context.Context, key string, value any) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	if err := g.redis.LRem(ctx, key, 0, value).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// LTrim truncates the list at key to the inclusive range [start, stop].
func (g *Gateway) LTrim(ctx context.Context, key string, start, stop int64) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	if err := g.redis.LTrim(ctx, key, start, stop).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// LRange returns the list elements in the inclusive range [start, stop].
// A missing key yields an empty slice, matching store semantics.
func (g *Gateway) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	vals, err := g.redis.LRange(ctx, key, start, stop).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, wrap(err)
	}
	return vals, nil
}

// LLen returns the length of the list at key.
func (g *Gateway) LLen(ctx context.Context, key string) (int64, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	n, err := g.redis.LLen(ctx, key).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

// GetMany reads several keys with a pipeline of independent GETs. The result
// slice is positionally aligned with keys; missing keys yield nil entries.
func (g *Gateway) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}

	ctx, cancel := g.bound(ctx)
	defer cancel()

	pipe := g.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, wrap(err)
	}

	out := make([][]byte, len(keys))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, wrap(err)
		}
		out[i] = data
	}
	return out, nil
}

// Ping reports point-in-time store availability and round-trip latency.
func (g *Gateway) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	start := time.Now()
	if err := g.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), wrap(err)
	}
	return time.Since(start), nil
}
