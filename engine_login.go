package exuberant

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/exuberant-im/exuberant/internal"
	"github.com/exuberant-im/exuberant/session"
)

// Login checks a password and either opens a session or, for accounts with
// a second factor enabled, mails a code and returns a challenge ticket.
// Unknown addresses and wrong passwords report the same error.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrBadEmail
	}

	if err := e.allow(ctx, bucketLogin); err != nil {
		return nil, err
	}

	acct, err := e.directory.Get(ctx, email)
	if err != nil {
		if errors.Is(err, errAccountNotFound) {
			e.metricInc(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}

	banned, err := e.isBanned(ctx, email)
	if err != nil {
		return nil, err
	}
	if banned {
		e.metricInc(MetricLoginBanned)
		return nil, ErrAccountBanned
	}

	ok, err := e.vault.Verify(pass, acct.Credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	// An admin can ban mid-flight; re-check before anything is issued.
	banned, err = e.isBanned(ctx, email)
	if err != nil {
		return nil, err
	}
	if banned {
		e.metricInc(MetricLoginBanned)
		return nil, ErrAccountBanned
	}

	// The credential checked out; drop any failed-attempt debt.
	e.forgive(ctx, bucketLogin)

	if e.config.Password.UpgradeOnLogin {
		if needs, err := e.vault.NeedsUpgrade(acct.Credential); err == nil && needs {
			e.upgradeCredential(ctx, acct, pass)
		}
	}

	if acct.TwoFactor {
		ticket, err := e.issueTwoFactorTicket(ctx, email)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricTwoFactorRequired)
		return &LoginResult{TwoFactorRequired: true, TwoFactorTicket: ticket}, nil
	}

	token, err := e.openSession(ctx, email)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	return &LoginResult{SessionToken: token}, nil
}

// upgradeCredential rehashes under current parameters after a successful
// check. Failures are logged and swallowed; the old record still works.
func (e *Engine) upgradeCredential(ctx context.Context, acct *Account, pass string) {
	rehashed, err := e.vault.Hash(pass)
	if err != nil {
		e.log.WarnContext(ctx, "credential upgrade hash failed", "err", err)
		return
	}
	acct.Credential = rehashed
	acct.UpdatedAt = now()
	if err := e.directory.Put(ctx, acct); err != nil {
		e.log.WarnContext(ctx, "credential upgrade write failed", "err", err)
		return
	}
	e.metricInc(MetricCredentialUpgraded)
}

// issueTwoFactorTicket mints a challenge ticket, stores the hashed code,
// and mails the plaintext code.
func (e *Engine) issueTwoFactorTicket(ctx context.Context, email string) (string, error) {
	ticket, err := internal.NewTicketToken()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}
	code, err := internal.NewOTP(e.config.TwoFactor.CodeDigits)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	sum := internal.HashCode(code)
	rec := ticketRecord{
		Schema:    ticketSchemaVersion,
		Email:     email,
		CodeHash:  hex.EncodeToString(sum[:]),
		CreatedAt: now(),
	}
	if err := e.tickets.Put(ctx, ticket, rec, e.config.TwoFactor.TicketTTL); err != nil {
		return "", storeErr(err)
	}

	if err := e.mailer.Send(ctx, email, "Your login code", loginMail(code, e.config.TwoFactor.TicketTTL)); err != nil {
		e.log.ErrorContext(ctx, "login code dispatch failed", "err", err)
		return "", fmt.Errorf("%w: %v", ErrMailDispatch, err)
	}
	return ticket, nil
}

// ConfirmTwoFactor completes a challenged login. Wrong codes leave the
// ticket in place so the caller may retry until the rate bucket or the
// ticket TTL runs out; the ticket is consumed only on success.
func (e *Engine) ConfirmTwoFactor(ctx context.Context, ticket, code string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	if err := e.allow(ctx, bucketTwoFactor); err != nil {
		return "", err
	}

	rec, err := e.tickets.Get(ctx, ticket)
	if err != nil {
		if errors.Is(err, errTicketNotFound) {
			e.metricInc(MetricTwoFactorFailure)
			return "", ErrTicketInvalid
		}
		return "", storeErr(err)
	}

	sum := internal.HashCode(code)
	if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(rec.CodeHash)) != 1 {
		e.metricInc(MetricTwoFactorFailure)
		return "", ErrInvalidCode
	}

	banned, err := e.isBanned(ctx, rec.Email)
	if err != nil {
		return "", err
	}
	if banned {
		return "", ErrAccountBanned
	}

	if err := e.tickets.Delete(ctx, ticket); err != nil {
		return "", storeErr(err)
	}

	token, err := e.openSession(ctx, rec.Email)
	if err != nil {
		return "", err
	}

	e.forgive(ctx, bucketTwoFactor)
	e.metricInc(MetricTwoFactorSuccess)
	return token, nil
}

// Logout terminates the session behind token. Unknown tokens are a no-op.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return nil
	}
	if err := e.sessions.Delete(ctx, token); err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricLogout)
	return nil
}

// Resolve maps a session token to its account view. Sessions of banned
// accounts resolve to [ErrAccountBanned] without revealing the account.
func (e *Engine) Resolve(ctx context.Context, token string) (AccountView, error) {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return AccountView{}, err
	}
	return acct.View(), nil
}

// resolveAccount is the internal form of [Engine.Resolve]: it returns the
// full record, credential included, for engine flows that need it.
func (e *Engine) resolveAccount(ctx context.Context, token string) (*Account, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricResolveLatency, time.Since(start))
		}
	}()

	if token == "" {
		e.metricInc(MetricResolveFailure)
		return nil, ErrUnauthorized
	}

	rec, err := e.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricResolveFailure)
			return nil, ErrUnauthorized
		}
		return nil, storeErr(err)
	}

	acct, err := e.directory.Get(ctx, rec.Email)
	if err != nil {
		if errors.Is(err, errAccountNotFound) {
			e.metricInc(MetricResolveFailure)
			return nil, ErrUserNotFound
		}
		return nil, storeErr(err)
	}

	banned, err := e.isBanned(ctx, rec.Email)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, ErrAccountBanned
	}

	e.metricInc(MetricResolveSuccess)
	return acct, nil
}

func loginMail(code string, ttl time.Duration) string {
	return "<p>Your login code is <strong>" + code + "</strong>. " +
		fmt.Sprintf("It expires in %d minutes.</p>", int(ttl.Minutes()))
}
