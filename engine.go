package exuberant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/exuberant-im/exuberant/internal/kv"
	"github.com/exuberant-im/exuberant/internal/rate"
	"github.com/exuberant-im/exuberant/password"
	"github.com/exuberant-im/exuberant/session"
)

// Engine is the root object of the library. Build one with [New] and
// [Builder.Build]; all methods are safe for concurrent use.
type Engine struct {
	config    Config
	kv        *kv.Gateway
	vault     *password.PBKDF2
	sessions  *session.Store
	directory *accountDirectory
	pending   *pendingStore
	tickets   *twoFactorStore
	bans      *banStore
	threads   *dmStore
	limiter   *rate.Limiter
	metrics   *Metrics
	mailer    Mailer
	captcha   CaptchaVerifier
	avatars   AvatarStore
	log       *slog.Logger
}

// Close releases engine-held resources. The redis client is owned by the
// caller and is not closed here.
func (e *Engine) Close() {
	if e == nil {
		return
	}
}

// Ping checks store reachability and returns the round-trip time.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	d, err := e.kv.Ping(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// allow runs the named rate bucket against the request origin from ctx.
// Requests without an attached client IP skip the bucket.
func (e *Engine) allow(ctx context.Context, bucket string) error {
	origin := clientIPFromContext(ctx)
	if origin == "" {
		return nil
	}
	err := e.limiter.Allow(ctx, bucket, origin)
	if err == nil {
		return nil
	}
	if errors.Is(err, rate.ErrLimited) {
		e.metricInc(MetricRateLimitHit)
		return ErrRateLimited
	}
	e.log.WarnContext(ctx, "rate limiter unavailable", "bucket", bucket, "err", err)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// allowKey runs the named bucket against an explicit origin, used for
// per-account limits where the key is not the caller's IP.
func (e *Engine) allowKey(ctx context.Context, bucket, origin string) error {
	err := e.limiter.Allow(ctx, bucket, origin)
	if err == nil {
		return nil
	}
	if errors.Is(err, rate.ErrLimited) {
		e.metricInc(MetricRateLimitHit)
		return ErrRateLimited
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// forgive clears the caller's window for a bucket after a definitive
// success so honest clients do not inherit failure debt. Best effort;
// a lingering counter only shortens the window, so errors are logged.
func (e *Engine) forgive(ctx context.Context, bucket string) {
	origin := clientIPFromContext(ctx)
	if origin == "" {
		return
	}
	if err := e.limiter.Reset(ctx, bucket, origin); err != nil {
		e.log.WarnContext(ctx, "rate window reset failed", "bucket", bucket, "err", err)
	}
}

// storeErr wraps store-layer failures into the public sentinel.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// isBanned consults the ban flag, failing closed on store errors.
func (e *Engine) isBanned(ctx context.Context, email string) (bool, error) {
	banned, err := e.bans.IsBanned(ctx, email)
	if err != nil {
		return false, storeErr(err)
	}
	return banned, nil
}

// now is the engine clock, swapped in tests.
var now = func() int64 { return time.Now().Unix() }
