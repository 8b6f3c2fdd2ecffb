package exuberant

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginOpensSession(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	registerAccount(t, eng, mailer, "login@example.com", "correct horse battery", "login_user", "Login")

	res, err := eng.Login(ctx, "login@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.TwoFactorRequired || res.SessionToken == "" {
		t.Fatalf("expected immediate session, got %+v", res)
	}

	view, err := eng.Resolve(ctx, res.SessionToken)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if view.Username != "login_user" {
		t.Fatalf("resolved wrong account: %+v", view)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	registerAccount(t, eng, mailer, "wp@example.com", "correct horse battery", "wp_user", "WP")

	_, err := eng.Login(ctx, "wp@example.com", "wrong password here")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownAccountIndistinguishable(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)

	_, err := eng.Login(context.Background(), "nobody@example.com", "whatever password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginEmailCaseInsensitive(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)

	registerAccount(t, eng, mailer, "case@example.com", "correct horse battery", "case_user", "Case")

	if _, err := eng.Login(context.Background(), "Case@Example.COM", "correct horse battery"); err != nil {
		t.Fatalf("mixed-case login failed: %v", err)
	}
}

func TestLoginRateLimitedRegardlessOfCorrectness(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)

	registerAccount(t, eng, mailer, "rl@example.com", "correct horse battery", "rl_user", "RL")

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	max := defaultConfig().RateLimits[bucketLogin].Max

	for i := 0; i < max; i++ {
		_, _ = eng.Login(ctx, "rl@example.com", "wrong password here")
	}

	// Correct credentials are rejected once the window is exhausted.
	_, err := eng.Login(ctx, "rl@example.com", "correct horse battery")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestLoginSuccessClearsWindow(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}

	cfg := defaultConfig()
	cfg.RateLimits[bucketLogin] = rateBucket(3)
	eng, err := New().WithConfig(cfg).WithRedis(rdb).WithMailer(mailer).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(eng.Close)

	registerAccount(t, eng, mailer, "clr@example.com", "correct horse battery", "clr_user", "Clr")
	ctx := WithClientIP(context.Background(), "203.0.113.10")

	login := func(pass string) error {
		_, err := eng.Login(ctx, "clr@example.com", pass)
		return err
	}

	// Two failures plus a success stay inside the window.
	_ = login("wrong password here")
	_ = login("wrong password here")
	if err := login("correct horse battery"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// The success cleared the counter, so a fresh run of attempts fits
	// where it otherwise would have tripped the limit.
	_ = login("wrong password here")
	_ = login("wrong password here")
	if err := login("correct horse battery"); err != nil {
		t.Fatalf("login after reset failed: %v", err)
	}
}

func TestBannedCannotLoginOrResolve(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}

	cfg := defaultConfig()
	cfg.AdminEmail = "admin@example.com"
	eng, err := New().WithConfig(cfg).WithRedis(rdb).WithMailer(mailer).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(eng.Close)
	ctx := context.Background()

	adminToken := registerAccount(t, eng, mailer, "admin@example.com", "correct horse battery", "admin_user", "Admin")
	userToken := registerAccount(t, eng, mailer, "target@example.com", "correct horse battery", "target_user", "Target")

	if err := eng.Ban(ctx, adminToken, "target@example.com", "spam"); err != nil {
		t.Fatalf("Ban failed: %v", err)
	}

	if _, err := eng.Resolve(ctx, userToken); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned on resolve, got %v", err)
	}
	if _, err := eng.Login(ctx, "target@example.com", "correct horse battery"); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned on login, got %v", err)
	}

	if err := eng.Unban(ctx, adminToken, "target@example.com"); err != nil {
		t.Fatalf("Unban failed: %v", err)
	}
	if _, err := eng.Login(ctx, "target@example.com", "correct horse battery"); err != nil {
		t.Fatalf("login after unban failed: %v", err)
	}
}

func TestTwoFactorLoginFlow(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	token := registerAccount(t, eng, mailer, "tf@example.com", "correct horse battery", "tf_user", "TF")
	if err := eng.SetTwoFactor(ctx, token, true); err != nil {
		t.Fatalf("SetTwoFactor failed: %v", err)
	}

	res, err := eng.Login(ctx, "tf@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.TwoFactorRequired || res.TwoFactorTicket == "" || res.SessionToken != "" {
		t.Fatalf("expected challenge, got %+v", res)
	}

	// Wrong code leaves the ticket usable.
	if _, err := eng.ConfirmTwoFactor(ctx, res.TwoFactorTicket, "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}

	session, err := eng.ConfirmTwoFactor(ctx, res.TwoFactorTicket, mailer.lastCode(t))
	if err != nil {
		t.Fatalf("ConfirmTwoFactor failed: %v", err)
	}
	if _, err := eng.Resolve(ctx, session); err != nil {
		t.Fatalf("Resolve after 2FA failed: %v", err)
	}

	// The ticket is consumed on success.
	if _, err := eng.ConfirmTwoFactor(ctx, res.TwoFactorTicket, mailer.lastCode(t)); !errors.Is(err, ErrTicketInvalid) {
		t.Fatalf("expected ErrTicketInvalid on reuse, got %v", err)
	}
}

func TestTwoFactorTicketExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	token := registerAccount(t, eng, mailer, "tfx@example.com", "correct horse battery", "tfx_user", "TFX")
	if err := eng.SetTwoFactor(ctx, token, true); err != nil {
		t.Fatalf("SetTwoFactor failed: %v", err)
	}

	res, err := eng.Login(ctx, "tfx@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	mr.FastForward(5*time.Minute + time.Second)

	if _, err := eng.ConfirmTwoFactor(ctx, res.TwoFactorTicket, mailer.lastCode(t)); !errors.Is(err, ErrTicketInvalid) {
		t.Fatalf("expected ErrTicketInvalid after expiry, got %v", err)
	}
}

func TestBannedCannotConfirmTwoFactor(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}

	cfg := defaultConfig()
	cfg.AdminEmail = "admin@example.com"
	eng, err := New().WithConfig(cfg).WithRedis(rdb).WithMailer(mailer).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(eng.Close)
	ctx := context.Background()

	adminToken := registerAccount(t, eng, mailer, "admin@example.com", "correct horse battery", "admin_user", "Admin")
	userToken := registerAccount(t, eng, mailer, "tfb@example.com", "correct horse battery", "tfb_user", "TFB")
	if err := eng.SetTwoFactor(ctx, userToken, true); err != nil {
		t.Fatalf("SetTwoFactor failed: %v", err)
	}

	res, err := eng.Login(ctx, "tfb@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.TwoFactorRequired {
		t.Fatalf("expected challenge, got %+v", res)
	}

	// A ban landing between the challenge and the code still blocks.
	if err := eng.Ban(ctx, adminToken, "tfb@example.com", "spam"); err != nil {
		t.Fatalf("Ban failed: %v", err)
	}
	if _, err := eng.ConfirmTwoFactor(ctx, res.TwoFactorTicket, mailer.lastCode(t)); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	token := registerAccount(t, eng, mailer, "out@example.com", "correct horse battery", "out_user", "Out")

	if err := eng.Logout(ctx, token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := eng.Resolve(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
	if err := eng.Logout(ctx, token); err != nil {
		t.Fatalf("second Logout failed: %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mailer := &captureMailer{}

	cfg := defaultConfig()
	cfg.Session.Lifetime = time.Hour
	eng, err := New().WithConfig(cfg).WithRedis(rdb).WithMailer(mailer).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(eng.Close)
	ctx := context.Background()

	token := registerAccount(t, eng, mailer, "exp@example.com", "correct horse battery", "exp_user", "Exp")

	mr.FastForward(time.Hour + time.Second)

	if _, err := eng.Resolve(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after expiry, got %v", err)
	}
}

func TestLegacyCredentialUpgradesOnLogin(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}

	cfg := defaultConfig()
	cfg.Password.LegacyKey = []byte("legacy-hmac-secret")
	eng, err := New().WithConfig(cfg).WithRedis(rdb).WithMailer(mailer).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(eng.Close)
	ctx := context.Background()

	// Seed an imported account carrying a legacy HMAC credential.
	legacy, err := eng.vault.LegacyRecord("imported password 1")
	if err != nil {
		t.Fatalf("LegacyRecord failed: %v", err)
	}
	acct := &Account{
		Schema:     accountSchemaVersion,
		Email:      "old@example.com",
		Username:   "old_user",
		Name:       "Old",
		Credential: legacy,
		CreatedAt:  now(),
		UpdatedAt:  now(),
	}
	if err := eng.directory.Put(ctx, acct); err != nil {
		t.Fatalf("seed account failed: %v", err)
	}
	if err := eng.directory.Reserve(ctx, "old_user", acct.Email); err != nil {
		t.Fatalf("seed reservation failed: %v", err)
	}

	if _, err := eng.Login(ctx, "old@example.com", "imported password 1"); err != nil {
		t.Fatalf("legacy login failed: %v", err)
	}

	upgraded, err := eng.directory.Get(ctx, "old@example.com")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if upgraded.Credential == legacy {
		t.Fatal("credential was not rehashed")
	}
	if needs, err := eng.vault.NeedsUpgrade(upgraded.Credential); err != nil || needs {
		t.Fatalf("rehashed credential still flagged for upgrade: needs=%v err=%v", needs, err)
	}

	// The password still works against the rehashed record.
	if _, err := eng.Login(ctx, "old@example.com", "imported password 1"); err != nil {
		t.Fatalf("login after upgrade failed: %v", err)
	}
}
