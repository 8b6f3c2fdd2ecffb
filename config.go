package exuberant

import (
	"errors"
	"time"

	"github.com/exuberant-im/exuberant/internal/rate"
)

// Rate limit bucket names understood by the default configuration. Callers
// adding buckets of their own must route them through [Engine] extensions.
const (
	bucketRegisterSend   = "register_send"
	bucketRegisterVerify = "register_verify"
	bucketLogin          = "login"
	bucketTwoFactor      = "twofa"
	bucketDMSend         = "dm_send"
	bucketProfileSet     = "profile_set"
)

// StoreConfig bounds the remote key-value store.
type StoreConfig struct {
	// OpTimeout caps each individual store command.
	OpTimeout time.Duration
}

// PasswordConfig controls credential hashing.
type PasswordConfig struct {
	Iterations int
	SaltLength int
	// LegacyKey enables verification of imported HMAC records. Leave nil
	// when no legacy records exist.
	LegacyKey []byte
	// UpgradeOnLogin rehashes legacy or under-parameterized records after
	// a successful password check.
	UpgradeOnLogin bool
}

// RegistrationConfig controls the email-verification signup flow.
type RegistrationConfig struct {
	CodeDigits     int
	PendingTTL     time.Duration
	VerifiedTTL    time.Duration
	RequireCaptcha bool
}

// SessionConfig controls issued sessions.
type SessionConfig struct {
	Lifetime time.Duration
}

// TwoFactorConfig controls the login second-factor challenge.
type TwoFactorConfig struct {
	TicketTTL  time.Duration
	CodeDigits int
}

// BanConfig controls administrative account bans.
type BanConfig struct {
	TTL time.Duration
}

// DMConfig bounds the direct-messaging engine. RecencyCap limits both
// how many threads the recency list retains and how many a listing
// returns; the list is trimmed on every touch.
type DMConfig struct {
	MaxTextLen      int
	MaxImageBytes   int
	RecencyCap      int
	FetchBatchLimit int
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Config is the root configuration for [Engine]. Zero values are filled
// from [defaultConfig] by the builder; explicit non-zero fields win.
type Config struct {
	Store        StoreConfig
	Password     PasswordConfig
	Registration RegistrationConfig
	Session      SessionConfig
	TwoFactor    TwoFactorConfig
	Ban          BanConfig
	DM           DMConfig
	RateLimits   map[string]rate.Bucket
	Metrics      MetricsConfig

	// AdminEmail, when set, grants the "developer" badge to the matching
	// account at finalize time.
	AdminEmail string
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{
			OpTimeout: 2 * time.Second,
		},
		Password: PasswordConfig{
			Iterations:     210000,
			SaltLength:     16,
			UpgradeOnLogin: true,
		},
		Registration: RegistrationConfig{
			CodeDigits:  6,
			PendingTTL:  5 * time.Minute,
			VerifiedTTL: 10 * time.Minute,
		},
		Session: SessionConfig{
			Lifetime: 30 * 24 * time.Hour,
		},
		TwoFactor: TwoFactorConfig{
			TicketTTL:  5 * time.Minute,
			CodeDigits: 6,
		},
		Ban: BanConfig{
			TTL: 365 * 24 * time.Hour,
		},
		DM: DMConfig{
			MaxTextLen:      4000,
			MaxImageBytes:   1 << 20,
			RecencyCap:      100,
			FetchBatchLimit: 50,
		},
		RateLimits: map[string]rate.Bucket{
			bucketRegisterSend:   {Max: 3, Window: 10 * time.Minute},
			bucketRegisterVerify: {Max: 10, Window: 10 * time.Minute},
			bucketLogin:          {Max: 10, Window: 5 * time.Minute},
			bucketTwoFactor:      {Max: 10, Window: 5 * time.Minute},
			bucketDMSend:         {Max: 60, Window: time.Minute},
			bucketProfileSet:     {Max: 10, Window: time.Minute},
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate rejects configurations the engine cannot run with. Called by
// the builder after defaults are merged.
func (c *Config) Validate() error {
	if c.Store.OpTimeout <= 0 {
		return errors.New("config: store op timeout must be positive")
	}
	if c.Registration.CodeDigits < 6 || c.Registration.CodeDigits > 10 {
		return errors.New("config: registration code digits out of range")
	}
	if c.TwoFactor.CodeDigits < 6 || c.TwoFactor.CodeDigits > 10 {
		return errors.New("config: two-factor code digits out of range")
	}
	if c.Registration.PendingTTL <= 0 || c.Registration.VerifiedTTL <= 0 {
		return errors.New("config: registration ttls must be positive")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("config: session lifetime must be positive")
	}
	if c.TwoFactor.TicketTTL <= 0 {
		return errors.New("config: two-factor ticket ttl must be positive")
	}
	if c.Ban.TTL <= 0 {
		return errors.New("config: ban ttl must be positive")
	}
	if c.DM.MaxTextLen <= 0 || c.DM.MaxImageBytes <= 0 {
		return errors.New("config: dm payload bounds must be positive")
	}
	if c.DM.RecencyCap <= 0 {
		return errors.New("config: dm recency cap must be positive")
	}
	if c.DM.FetchBatchLimit <= 0 {
		return errors.New("config: dm fetch batch limit must be positive")
	}
	for name, b := range c.RateLimits {
		if b.Max <= 0 || b.Window <= 0 {
			return errors.New("config: rate bucket " + name + " must have positive max and window")
		}
	}
	return nil
}

// cloneConfig deep-copies mutable fields so callers cannot alter a running
// engine's configuration.
func cloneConfig(c Config) Config {
	out := c
	if c.Password.LegacyKey != nil {
		out.Password.LegacyKey = append([]byte(nil), c.Password.LegacyKey...)
	}
	if c.RateLimits != nil {
		out.RateLimits = make(map[string]rate.Bucket, len(c.RateLimits))
		for k, v := range c.RateLimits {
			out.RateLimits[k] = v
		}
	}
	return out
}

// mergeDefaults fills zero-valued fields from [defaultConfig].
func mergeDefaults(c Config) Config {
	d := defaultConfig()
	if c.Store.OpTimeout == 0 {
		c.Store.OpTimeout = d.Store.OpTimeout
	}
	if c.Password.Iterations == 0 {
		c.Password.Iterations = d.Password.Iterations
	}
	if c.Password.SaltLength == 0 {
		c.Password.SaltLength = d.Password.SaltLength
	}
	if c.Registration.CodeDigits == 0 {
		c.Registration.CodeDigits = d.Registration.CodeDigits
	}
	if c.Registration.PendingTTL == 0 {
		c.Registration.PendingTTL = d.Registration.PendingTTL
	}
	if c.Registration.VerifiedTTL == 0 {
		c.Registration.VerifiedTTL = d.Registration.VerifiedTTL
	}
	if c.Session.Lifetime == 0 {
		c.Session.Lifetime = d.Session.Lifetime
	}
	if c.TwoFactor.TicketTTL == 0 {
		c.TwoFactor.TicketTTL = d.TwoFactor.TicketTTL
	}
	if c.TwoFactor.CodeDigits == 0 {
		c.TwoFactor.CodeDigits = d.TwoFactor.CodeDigits
	}
	if c.Ban.TTL == 0 {
		c.Ban.TTL = d.Ban.TTL
	}
	if c.DM.MaxTextLen == 0 {
		c.DM.MaxTextLen = d.DM.MaxTextLen
	}
	if c.DM.MaxImageBytes == 0 {
		c.DM.MaxImageBytes = d.DM.MaxImageBytes
	}
	if c.DM.RecencyCap == 0 {
		c.DM.RecencyCap = d.DM.RecencyCap
	}
	if c.DM.FetchBatchLimit == 0 {
		c.DM.FetchBatchLimit = d.DM.FetchBatchLimit
	}
	if c.RateLimits == nil {
		c.RateLimits = d.RateLimits
	}
	return c
}
