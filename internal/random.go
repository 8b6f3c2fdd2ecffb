package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	sessionTokenSize = 32
	ticketTokenSize  = 24
)

// NewSessionToken returns an unguessable opaque bearer token with 256 bits
// of entropy, base64url encoded without padding.
func NewSessionToken() (string, error) {
	var raw [sessionTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewTicketToken returns a random token for short-lived second-factor
// tickets.
func NewTicketToken() (string, error) {
	var raw [ticketTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewOTP returns a uniformly random numeric one-time code of the given
// length. Codes are short-lived and rate-limited, so digits, not entropy,
// bound their strength.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashCode returns the SHA-256 digest of a one-time code. Stored records
// keep only the digest; comparison is constant-time at the call site.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}
