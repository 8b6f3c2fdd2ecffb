package exuberant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/exuberant-im/exuberant/internal/kv"
)

// ticketRecord is the pending second-factor challenge behind
// "2fa:<ticket>". The ticket token in the key is the only handle the
// client ever sees; the code hash stays server-side.
type ticketRecord struct {
	Schema    int    `json:"v"`
	Email     string `json:"email"`
	CodeHash  string `json:"codeHash"`
	CreatedAt int64  `json:"createdAt"`
}

var errTicketNotFound = errors.New("two-factor ticket not found")

type twoFactorStore struct {
	kv *kv.Gateway
}

func newTwoFactorStore(gateway *kv.Gateway) *twoFactorStore {
	return &twoFactorStore{kv: gateway}
}

func ticketKey(ticket string) string {
	return "2fa:" + ticket
}

func (s *twoFactorStore) Put(ctx context.Context, ticket string, rec ticketRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ticket encode: %w", err)
	}
	if err := s.kv.Set(ctx, ticketKey(ticket), raw, ttl); err != nil {
		return fmt.Errorf("ticket put: %w", err)
	}
	return nil
}

func (s *twoFactorStore) Get(ctx context.Context, ticket string) (ticketRecord, error) {
	var rec ticketRecord
	raw, err := s.kv.GetBytes(ctx, ticketKey(ticket))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return rec, errTicketNotFound
		}
		return rec, fmt.Errorf("ticket get: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Email == "" {
		return rec, errTicketNotFound
	}
	return rec, nil
}

// Delete consumes a ticket. Idempotent.
func (s *twoFactorStore) Delete(ctx context.Context, ticket string) error {
	if err := s.kv.Del(ctx, ticketKey(ticket)); err != nil {
		return fmt.Errorf("ticket del: %w", err)
	}
	return nil
}
