package password

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	schemeCurrent = "pbkdf2"
	schemeLegacy  = "legacy"

	minIterations  = 150000
	minSaltLength  = 16
	digestLength   = 32
	minLegacyKey   = 16
	recordSections = 4
)

// ErrMalformedRecord is returned when a stored credential record cannot be
// parsed under any known scheme.
var ErrMalformedRecord = errors.New("malformed credential record")

// Config defines hashing parameters for new records and the key used to
// verify legacy unsalted records.
type Config struct {
	Iterations int
	SaltLength int
	// LegacyKey is the keyed-hash secret of the pre-migration scheme. Empty
	// disables legacy verification entirely.
	LegacyKey []byte
}

// PBKDF2 hashes and verifies credential records. Instances are immutable
// after construction and safe for concurrent use.
type PBKDF2 struct {
	config Config
}

// NewPBKDF2 validates cfg and returns a vault. Iteration and salt floors
// are hard minimums, not defaults.
func NewPBKDF2(cfg Config) (*PBKDF2, error) {
	if cfg.Iterations < minIterations {
		return nil, fmt.Errorf("password iterations must be >= %d", minIterations)
	}
	if cfg.SaltLength < minSaltLength {
		return nil, fmt.Errorf("password salt length must be >= %d", minSaltLength)
	}
	if len(cfg.LegacyKey) > 0 && len(cfg.LegacyKey) < minLegacyKey {
		return nil, fmt.Errorf("legacy key must be >= %d bytes", minLegacyKey)
	}

	return &PBKDF2{config: cfg}, nil
}

// Hash derives a current-scheme record from the plaintext password.
func (p *PBKDF2) Hash(password string) (string, error) {
	salt := make([]byte, p.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	digest := pbkdf2.Key([]byte(password), salt, p.config.Iterations, digestLength, sha256.New)

	return fmt.Sprintf(
		"%s$%d$%s$%s",
		schemeCurrent,
		p.config.Iterations,
		hex.EncodeToString(salt),
		hex.EncodeToString(digest),
	), nil
}

// Verify reports whether password matches record under the record's own
// scheme. Digest comparison is constant-time.
func (p *PBKDF2) Verify(password, record string) (bool, error) {
	scheme, rest, ok := strings.Cut(record, "$")
	if !ok {
		return false, ErrMalformedRecord
	}

	switch scheme {
	case schemeCurrent:
		return p.verifyCurrent(password, rest)
	case schemeLegacy:
		return p.verifyLegacy(password, rest)
	default:
		return false, ErrMalformedRecord
	}
}

// NeedsUpgrade reports whether a record that just verified should be
// re-hashed under the current scheme. True for legacy records and for
// current records derived with fewer iterations than configured.
func (p *PBKDF2) NeedsUpgrade(record string) (bool, error) {
	scheme, rest, ok := strings.Cut(record, "$")
	if !ok {
		return false, ErrMalformedRecord
	}

	switch scheme {
	case schemeLegacy:
		return true, nil
	case schemeCurrent:
		iterations, _, _, err := parseCurrent(rest)
		if err != nil {
			return false, err
		}
		return iterations < p.config.Iterations, nil
	default:
		return false, ErrMalformedRecord
	}
}

func (p *PBKDF2) verifyCurrent(password, rest string) (bool, error) {
	iterations, salt, digest, err := parseCurrent(rest)
	if err != nil {
		return false, err
	}

	computed := pbkdf2.Key([]byte(password), salt, iterations, len(digest), sha256.New)
	return subtle.ConstantTimeCompare(computed, digest) == 1, nil
}

func (p *PBKDF2) verifyLegacy(password, rest string) (bool, error) {
	if len(p.config.LegacyKey) == 0 {
		return false, nil
	}

	digest, err := hex.DecodeString(rest)
	if err != nil || len(digest) != digestLength {
		return false, ErrMalformedRecord
	}

	mac := hmac.New(sha256.New, p.config.LegacyKey)
	mac.Write([]byte(password))
	return subtle.ConstantTimeCompare(mac.Sum(nil), digest) == 1, nil
}

func parseCurrent(rest string) (int, []byte, []byte, error) {
	parts := strings.Split(rest, "$")
	if len(parts) != recordSections-1 {
		return 0, nil, nil, ErrMalformedRecord
	}

	iterations, err := strconv.Atoi(parts[0])
	if err != nil || iterations < 1 {
		return 0, nil, nil, ErrMalformedRecord
	}

	salt, err := hex.DecodeString(parts[1])
	if err != nil || len(salt) < minSaltLength {
		return 0, nil, nil, ErrMalformedRecord
	}

	digest, err := hex.DecodeString(parts[2])
	if err != nil || len(digest) != digestLength {
		return 0, nil, nil, ErrMalformedRecord
	}

	return iterations, salt, digest, nil
}

// LegacyRecord builds a legacy-scheme record from a plaintext password.
// Exists for fixtures and data backfill verification only.
func (p *PBKDF2) LegacyRecord(password string) (string, error) {
	if len(p.config.LegacyKey) == 0 {
		return "", errors.New("legacy key not configured")
	}

	mac := hmac.New(sha256.New, p.config.LegacyKey)
	mac.Write([]byte(password))
	return schemeLegacy + "$" + hex.EncodeToString(mac.Sum(nil)), nil
}
