package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/exuberant-im/exuberant/internal/kv"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewStore(kv.New(client, time.Second))
}

func TestSaveAndGet(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "tok-1", "alice@example.com", time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	record, err := store.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Email != "alice@example.com" {
		t.Fatalf("unexpected email: %s", record.Email)
	}
	if record.Schema != SchemaVersion {
		t.Fatalf("unexpected schema version: %d", record.Schema)
	}
}

func TestGetMissingToken(t *testing.T) {
	_, store := newTestStore(t)

	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiryIsNotSlidByReads(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "tok-1", "alice@example.com", time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(30 * time.Second)
	if _, err := store.Get(ctx, "tok-1"); err != nil {
		t.Fatalf("Get failed mid-lifetime: %v", err)
	}

	// A read must not extend the lifetime.
	mr.FastForward(31 * time.Second)
	if _, err := store.Get(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "tok-1", "alice@example.com", time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
