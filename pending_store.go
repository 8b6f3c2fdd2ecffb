package exuberant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/exuberant-im/exuberant/internal/kv"
)

// pendingRecord is the in-flight registration behind "pendreg:<email>".
// CodeHash is hex(sha256(code)); the plaintext code lives only in the
// outbound mail.
type pendingRecord struct {
	Schema         int    `json:"v"`
	CodeHash       string `json:"codeHash"`
	CredentialHash string `json:"credential,omitempty"`
	Verified       bool   `json:"verified,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

var errPendingNotFound = errors.New("pending registration not found")

// pendingStore holds registrations between code dispatch and finalize.
// The record's TTL enforces both the code deadline and the
// post-verification finalize deadline.
type pendingStore struct {
	kv *kv.Gateway
}

func newPendingStore(gateway *kv.Gateway) *pendingStore {
	return &pendingStore{kv: gateway}
}

func pendingKey(email string) string {
	return "pendreg:" + email
}

func (s *pendingStore) Put(ctx context.Context, email string, rec pendingRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pending encode: %w", err)
	}
	if err := s.kv.Set(ctx, pendingKey(email), raw, ttl); err != nil {
		return fmt.Errorf("pending put: %w", err)
	}
	return nil
}

func (s *pendingStore) Get(ctx context.Context, email string) (pendingRecord, error) {
	var rec pendingRecord
	raw, err := s.kv.GetBytes(ctx, pendingKey(email))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return rec, errPendingNotFound
		}
		return rec, fmt.Errorf("pending get: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil || rec.CodeHash == "" {
		return rec, errPendingNotFound
	}
	return rec, nil
}

func (s *pendingStore) Delete(ctx context.Context, email string) error {
	if err := s.kv.Del(ctx, pendingKey(email)); err != nil {
		return fmt.Errorf("pending del: %w", err)
	}
	return nil
}
