package exuberant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/exuberant-im/exuberant/internal/kv"
)

// banRecord is the JSON value behind "ban:<email>".
type banRecord struct {
	Schema   int    `json:"v"`
	Reason   string `json:"reason,omitempty"`
	By       string `json:"by,omitempty"`
	BannedAt int64  `json:"bannedAt"`
}

// banStore marks accounts as administratively banned. A ban is a flag key
// with a long TTL; the account record itself is untouched so unbanning is
// a single delete.
type banStore struct {
	kv  *kv.Gateway
	ttl time.Duration
}

func newBanStore(gateway *kv.Gateway, ttl time.Duration) *banStore {
	return &banStore{kv: gateway, ttl: ttl}
}

func banKey(email string) string {
	return "ban:" + email
}

func (s *banStore) Ban(ctx context.Context, email, reason, by string) error {
	rec := banRecord{
		Schema:   banSchemaVersion,
		Reason:   reason,
		By:       by,
		BannedAt: time.Now().Unix(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ban encode: %w", err)
	}
	if err := s.kv.Set(ctx, banKey(email), raw, s.ttl); err != nil {
		return fmt.Errorf("ban set: %w", err)
	}
	return nil
}

// Unban is idempotent.
func (s *banStore) Unban(ctx context.Context, email string) error {
	if err := s.kv.Del(ctx, banKey(email)); err != nil {
		return fmt.Errorf("ban del: %w", err)
	}
	return nil
}

// IsBanned reports the flag. Store failures propagate so callers fail
// closed rather than letting a banned account through.
func (s *banStore) IsBanned(ctx context.Context, email string) (bool, error) {
	_, err := s.kv.Get(ctx, banKey(email))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("ban check: %w", err)
}
