package exuberant

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/exuberant-im/exuberant/internal"
)

// SendRegistrationCode starts a signup: it stores a pending registration
// carrying the hashed credential and mails a one-time code to the address.
// Calling it again for the same address replaces the pending record and
// issues a fresh code.
//
// When the captcha requirement is on, captchaToken must verify. Duplicate
// addresses are rejected up front so no mail is sent for accounts that
// already exist.
func (e *Engine) SendRegistrationCode(ctx context.Context, email, pass, captchaToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrBadEmail
	}
	if !validPassword(pass) {
		return ErrBadPassword
	}

	// Rate limit before the captcha round-trip; an exhausted origin must
	// not cost an external verification call.
	if err := e.allow(ctx, bucketRegisterSend); err != nil {
		return err
	}

	if e.config.Registration.RequireCaptcha {
		ok, err := e.captcha.Verify(ctx, captchaToken, clientIPFromContext(ctx))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCaptchaRequired, err)
		}
		if !ok {
			return ErrCaptchaRequired
		}
	}

	exists, err := e.directory.Exists(ctx, email)
	if err != nil {
		return storeErr(err)
	}
	if exists {
		return ErrAccountExists
	}

	code, err := internal.NewOTP(e.config.Registration.CodeDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	credential, err := e.vault.Hash(pass)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	sum := internal.HashCode(code)
	rec := pendingRecord{
		Schema:         pendingSchemaVersion,
		CodeHash:       hex.EncodeToString(sum[:]),
		CredentialHash: credential,
		CreatedAt:      now(),
	}
	if err := e.pending.Put(ctx, email, rec, e.config.Registration.PendingTTL); err != nil {
		return storeErr(err)
	}

	// The record is written before dispatch so a mailer retry can reuse
	// it; a failed send leaves a harmless pending entry that expires.
	if err := e.mailer.Send(ctx, email, "Your verification code", verificationMail(code, e.config.Registration.PendingTTL)); err != nil {
		e.metricInc(MetricRegisterCodeFailed)
		e.log.ErrorContext(ctx, "verification mail dispatch failed", "err", err)
		return fmt.Errorf("%w: %v", ErrMailDispatch, err)
	}

	e.metricInc(MetricRegisterCodeSent)
	return nil
}

// VerifyRegistrationCode checks the mailed code. On success the pending
// record is marked verified and its deadline extended so the caller has
// time to complete the profile step.
func (e *Engine) VerifyRegistrationCode(ctx context.Context, email, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrBadEmail
	}

	if err := e.allow(ctx, bucketRegisterVerify); err != nil {
		return err
	}

	rec, err := e.pending.Get(ctx, email)
	if err != nil {
		if err == errPendingNotFound {
			e.metricInc(MetricRegisterVerifyFailed)
			return ErrNoPending
		}
		return storeErr(err)
	}

	sum := internal.HashCode(code)
	if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(rec.CodeHash)) != 1 {
		e.metricInc(MetricRegisterVerifyFailed)
		return ErrInvalidCode
	}

	rec.Verified = true
	if err := e.pending.Put(ctx, email, rec, e.config.Registration.VerifiedTTL); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricRegisterVerified)
	return nil
}

// FinalizeRegistration creates the account from a verified pending record
// and opens the first session. The write order is account record, username
// reservation, pending cleanup, session; a crash mid-way leaves a usable
// account whose handle can be re-reserved on next login support contact,
// never a reservation without an account.
func (e *Engine) FinalizeRegistration(ctx context.Context, email, username, name string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return "", ErrBadEmail
	}
	if !validUsername(username) {
		return "", ErrBadUsername
	}
	if !validName(name) {
		return "", ErrBadName
	}

	rec, err := e.pending.Get(ctx, email)
	if err != nil {
		if err == errPendingNotFound {
			return "", ErrNoPending
		}
		return "", storeErr(err)
	}
	if !rec.Verified {
		return "", ErrNotVerified
	}

	exists, err := e.directory.Exists(ctx, email)
	if err != nil {
		return "", storeErr(err)
	}
	if exists {
		e.metricInc(MetricRegisterDuplicate)
		return "", ErrAccountExists
	}

	if owner, taken, err := e.directory.UsernameOwner(ctx, username); err != nil {
		return "", storeErr(err)
	} else if taken && owner != email {
		return "", ErrUsernameTaken
	}

	ts := now()
	acct := &Account{
		Schema:     accountSchemaVersion,
		Email:      email,
		Username:   username,
		Name:       name,
		Credential: rec.CredentialHash,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if e.config.AdminEmail != "" && email == normalizeEmail(e.config.AdminEmail) {
		acct.Badges = []string{"developer"}
	}

	if err := e.directory.Put(ctx, acct); err != nil {
		return "", storeErr(err)
	}
	if err := e.directory.Reserve(ctx, username, email); err != nil {
		return "", storeErr(err)
	}
	if err := e.pending.Delete(ctx, email); err != nil {
		e.log.WarnContext(ctx, "pending cleanup failed", "err", err)
	}

	token, err := e.openSession(ctx, email)
	if err != nil {
		return "", err
	}

	e.metricInc(MetricRegisterFinalized)
	e.log.InfoContext(ctx, "account created", "username", username)
	return token, nil
}

// openSession mints and stores a fresh session token for email.
func (e *Engine) openSession(ctx context.Context, email string) (string, error) {
	token, err := internal.NewSessionToken()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}
	if err := e.sessions.Save(ctx, token, email, e.config.Session.Lifetime); err != nil {
		return "", storeErr(err)
	}
	e.metricInc(MetricSessionCreated)
	return token, nil
}

func verificationMail(code string, ttl time.Duration) string {
	return "<p>Your verification code is <strong>" + code + "</strong>. " +
		fmt.Sprintf("It expires in %d minutes.</p>", int(ttl.Minutes()))
}
