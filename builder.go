package exuberant

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/exuberant-im/exuberant/internal/kv"
	"github.com/exuberant-im/exuberant/internal/rate"
	"github.com/exuberant-im/exuberant/password"
	"github.com/exuberant-im/exuberant/session"
)

// Builder assembles an [Engine]. Configure it once, call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	mailer  Mailer
	captcha CaptchaVerifier
	avatars AvatarStore
	logger  *slog.Logger

	built bool
}

// New returns a builder preloaded with [defaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. Zero-valued fields are filled
// with defaults at Build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the store client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMailer sets the outbound mail collaborator. Required: registration
// cannot run without code delivery.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithCaptcha sets the challenge verifier. Optional unless
// Registration.RequireCaptcha is on.
func (b *Builder) WithCaptcha(c CaptchaVerifier) *Builder {
	b.captcha = c
	return b
}

// WithAvatarStore sets the avatar upload collaborator. Optional; without
// it avatar updates are rejected.
func (b *Builder) WithAvatarStore(s AvatarStore) *Builder {
	b.avatars = s
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsEnabled toggles the counter sink.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build wires the stores and returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := mergeDefaults(cloneConfig(b.config))

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if cfg.Registration.RequireCaptcha && b.captcha == nil {
		return nil, errors.New("captcha verifier required when registration captcha is on")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gateway := kv.New(b.redis, cfg.Store.OpTimeout)

	vault, err := password.NewPBKDF2(password.Config{
		Iterations: cfg.Password.Iterations,
		SaltLength: cfg.Password.SaltLength,
		LegacyKey:  cfg.Password.LegacyKey,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:    cfg,
		kv:        gateway,
		vault:     vault,
		sessions:  session.NewStore(gateway),
		directory: newAccountDirectory(gateway),
		pending:   newPendingStore(gateway),
		tickets:   newTwoFactorStore(gateway),
		bans:      newBanStore(gateway, cfg.Ban.TTL),
		threads:   newDMStore(gateway),
		limiter:   rate.New(gateway, cfg.RateLimits),
		metrics:   NewMetrics(cfg.Metrics),
		mailer:    b.mailer,
		captcha:   b.captcha,
		avatars:   b.avatars,
		log:       logger,
	}

	b.built = true

	return engine, nil
}
