package exuberant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/exuberant-im/exuberant/internal/kv"
)

var errAccountNotFound = errors.New("account not found")

// accountDirectory owns the account records and the username reservation
// index. Keys: "acct:<email>" holds the JSON record, "uname:<username>"
// holds the owning email.
type accountDirectory struct {
	kv *kv.Gateway
}

func newAccountDirectory(gateway *kv.Gateway) *accountDirectory {
	return &accountDirectory{kv: gateway}
}

func accountKey(email string) string {
	return "acct:" + email
}

func usernameKey(username string) string {
	return "uname:" + username
}

// Get loads the record behind email. Missing or unreadable records both
// report errAccountNotFound; unreadable records are logged upstream.
func (d *accountDirectory) Get(ctx context.Context, email string) (*Account, error) {
	raw, err := d.kv.GetBytes(ctx, accountKey(email))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, errAccountNotFound
		}
		return nil, fmt.Errorf("directory get: %w", err)
	}

	var acct Account
	if err := json.Unmarshal(raw, &acct); err != nil || acct.Email == "" {
		return nil, errAccountNotFound
	}
	return &acct, nil
}

// GetByUsername follows the reservation index to the account record.
func (d *accountDirectory) GetByUsername(ctx context.Context, username string) (*Account, error) {
	email, err := d.kv.Get(ctx, usernameKey(username))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, errAccountNotFound
		}
		return nil, fmt.Errorf("directory username lookup: %w", err)
	}
	return d.Get(ctx, strings.TrimSpace(email))
}

// Exists reports whether an account record is present for email.
func (d *accountDirectory) Exists(ctx context.Context, email string) (bool, error) {
	_, err := d.kv.Get(ctx, accountKey(email))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("directory exists: %w", err)
}

// UsernameOwner returns the email owning username; ok is false when the
// name is free.
func (d *accountDirectory) UsernameOwner(ctx context.Context, username string) (string, bool, error) {
	email, err := d.kv.Get(ctx, usernameKey(username))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("directory owner lookup: %w", err)
	}
	return email, true, nil
}

// Put writes the account record. The caller is responsible for keeping the
// username index in step via Reserve and Release.
func (d *accountDirectory) Put(ctx context.Context, acct *Account) error {
	raw, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("directory encode: %w", err)
	}
	if err := d.kv.Set(ctx, accountKey(acct.Email), raw, 0); err != nil {
		return fmt.Errorf("directory put: %w", err)
	}
	return nil
}

// Reserve points the username index at email. The store offers no
// compare-and-set, so callers must check the owner first; a concurrent
// duplicate claim resolves to whichever write lands last.
func (d *accountDirectory) Reserve(ctx context.Context, username, email string) error {
	if err := d.kv.Set(ctx, usernameKey(username), email, 0); err != nil {
		return fmt.Errorf("directory reserve: %w", err)
	}
	return nil
}

// Release drops the reservation for username only if email still owns it.
func (d *accountDirectory) Release(ctx context.Context, username, email string) error {
	owner, ok, err := d.UsernameOwner(ctx, username)
	if err != nil {
		return err
	}
	if !ok || owner != email {
		return nil
	}
	if err := d.kv.Del(ctx, usernameKey(username)); err != nil {
		return fmt.Errorf("directory release: %w", err)
	}
	return nil
}

// Move reassigns an account's handle: reserve the new name, rewrite the
// record, then release the old reservation. Order matters; releasing
// before reserving would leave a window where the account has no handle.
func (d *accountDirectory) Move(ctx context.Context, acct *Account, newUsername string) error {
	old := acct.Username
	if err := d.Reserve(ctx, newUsername, acct.Email); err != nil {
		return err
	}
	acct.Username = newUsername
	if err := d.Put(ctx, acct); err != nil {
		return err
	}
	if old != "" && old != newUsername {
		if err := d.Release(ctx, old, acct.Email); err != nil {
			return err
		}
	}
	return nil
}
