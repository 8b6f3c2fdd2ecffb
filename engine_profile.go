package exuberant

import (
	"context"
	"errors"
)

// Profile returns the caller's own account view.
func (e *Engine) Profile(ctx context.Context, token string) (AccountView, error) {
	return e.Resolve(ctx, token)
}

// Lookup resolves another account by handle. Callers see the same public
// projection regardless of who asks.
func (e *Engine) Lookup(ctx context.Context, token, username string) (AccountView, error) {
	if _, err := e.resolveAccount(ctx, token); err != nil {
		return AccountView{}, err
	}
	if !validUsername(username) {
		return AccountView{}, ErrBadUsername
	}

	acct, err := e.directory.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, errAccountNotFound) {
			return AccountView{}, ErrUserNotFound
		}
		return AccountView{}, storeErr(err)
	}
	return acct.View(), nil
}

// UpdateProfile applies the non-nil fields of upd to the caller's account.
// A username change re-reserves the handle; the old handle frees up
// immediately.
func (e *Engine) UpdateProfile(ctx context.Context, token string, upd ProfileUpdate) (AccountView, error) {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return AccountView{}, err
	}

	if err := e.allow(ctx, bucketProfileSet); err != nil {
		return AccountView{}, err
	}

	if upd.Name != nil {
		if !validName(*upd.Name) {
			return AccountView{}, ErrBadName
		}
		acct.Name = *upd.Name
	}
	if upd.Bio != nil {
		if !validBio(*upd.Bio) {
			return AccountView{}, ErrBadBio
		}
		acct.Bio = *upd.Bio
	}
	if upd.AvatarRef != nil {
		acct.AvatarRef = *upd.AvatarRef
	}

	if upd.Username != nil && *upd.Username != acct.Username {
		next := *upd.Username
		if !validUsername(next) {
			return AccountView{}, ErrBadUsername
		}
		owner, taken, err := e.directory.UsernameOwner(ctx, next)
		if err != nil {
			return AccountView{}, storeErr(err)
		}
		if taken && owner != acct.Email {
			return AccountView{}, ErrUsernameTaken
		}
		acct.UpdatedAt = now()
		if err := e.directory.Move(ctx, acct, next); err != nil {
			return AccountView{}, storeErr(err)
		}
	} else {
		acct.UpdatedAt = now()
		if err := e.directory.Put(ctx, acct); err != nil {
			return AccountView{}, storeErr(err)
		}
	}

	e.metricInc(MetricProfileUpdated)
	return acct.View(), nil
}

// UploadAvatar hands raw image bytes to the avatar collaborator and
// records the returned reference on the caller's profile.
func (e *Engine) UploadAvatar(ctx context.Context, token string, data []byte, declaredType string) (AccountView, error) {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return AccountView{}, err
	}
	if e.avatars == nil {
		return AccountView{}, ErrBadPayload
	}
	if len(data) == 0 || len(data) > e.config.DM.MaxImageBytes {
		return AccountView{}, ErrBadPayload
	}

	ref, err := e.avatars.Accept(ctx, data, declaredType)
	if err != nil {
		return AccountView{}, ErrBadPayload
	}

	acct.AvatarRef = ref
	acct.UpdatedAt = now()
	if err := e.directory.Put(ctx, acct); err != nil {
		return AccountView{}, storeErr(err)
	}

	e.metricInc(MetricProfileUpdated)
	return acct.View(), nil
}

// SetTwoFactor toggles the login second factor for the caller's account.
func (e *Engine) SetTwoFactor(ctx context.Context, token string, enabled bool) error {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return err
	}
	if acct.TwoFactor == enabled {
		return nil
	}
	acct.TwoFactor = enabled
	acct.UpdatedAt = now()
	if err := e.directory.Put(ctx, acct); err != nil {
		return storeErr(err)
	}
	return nil
}

// Ban flags the target account. Only administrators, recognized by the
// "developer" badge, may ban. The flag takes effect on the target's next
// resolved request; no store scan is needed to kill live sessions.
func (e *Engine) Ban(ctx context.Context, token, targetEmail, reason string) error {
	admin, err := e.resolveAccount(ctx, token)
	if err != nil {
		return err
	}
	if !hasBadge(admin, "developer") {
		return ErrUnauthorized
	}

	targetEmail = normalizeEmail(targetEmail)
	exists, err := e.directory.Exists(ctx, targetEmail)
	if err != nil {
		return storeErr(err)
	}
	if !exists {
		return ErrUserNotFound
	}
	if targetEmail == admin.Email {
		return ErrBadPayload
	}

	if err := e.bans.Ban(ctx, targetEmail, reason, admin.Email); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricAccountBanned)
	e.log.InfoContext(ctx, "account banned", "by", admin.Username)
	return nil
}

// Unban clears the ban flag. Unbanning a non-banned account is a no-op.
func (e *Engine) Unban(ctx context.Context, token, targetEmail string) error {
	admin, err := e.resolveAccount(ctx, token)
	if err != nil {
		return err
	}
	if !hasBadge(admin, "developer") {
		return ErrUnauthorized
	}
	if err := e.bans.Unban(ctx, normalizeEmail(targetEmail)); err != nil {
		return storeErr(err)
	}
	return nil
}

func hasBadge(acct *Account, badge string) bool {
	for _, b := range acct.Badges {
		if b == badge {
			return true
		}
	}
	return false
}
