package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/exuberant-im/exuberant/internal/kv"
)

// ErrNotFound is returned when a token has no live session record.
var ErrNotFound = errors.New("session not found")

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("session store unavailable")

const keyPrefix = "sess"

// Store persists session records keyed by opaque token.
type Store struct {
	kv *kv.Gateway
}

// NewStore creates a session [Store] over the given gateway.
func NewStore(gateway *kv.Gateway) *Store {
	return &Store{kv: gateway}
}

func key(token string) string {
	return keyPrefix + ":" + token
}

// Save persists a session record under token with the given TTL.
func (s *Store) Save(ctx context.Context, token, email string, ttl time.Duration) error {
	record := Record{
		Schema:    SchemaVersion,
		Email:     email,
		CreatedAt: time.Now().Unix(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, key(token), data, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get resolves a token to its record, or [ErrNotFound].
func (s *Store) Get(ctx context.Context, token string) (*Record, error) {
	data, err := s.kv.GetBytes(ctx, key(token))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: corrupt session record", ErrNotFound)
	}
	if record.Email == "" {
		return nil, ErrNotFound
	}
	return &record, nil
}

// Delete revokes a token. A missing or already-expired token is not an
// error; logout is idempotent.
func (s *Store) Delete(ctx context.Context, token string) error {
	if err := s.kv.Del(ctx, key(token)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
