package exuberant

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/exuberant-im/exuberant/internal/rate"
)

var errMailDown = errors.New("mail transport down")

func rateBucket(max int) rate.Bucket {
	return rate.Bucket{Max: max, Window: time.Minute}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

var codePattern = regexp.MustCompile(`\d{6,10}`)

// captureMailer records outbound mail and exposes the last mailed code.
type captureMailer struct {
	mu   sync.Mutex
	sent []capturedMail
	fail bool
}

type capturedMail struct {
	To      string
	Subject string
	Body    string
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errMailDown
	}
	m.sent = append(m.sent, capturedMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail was sent")
	}
	code := codePattern.FindString(m.sent[len(m.sent)-1].Body)
	if code == "" {
		t.Fatalf("no code in mail body: %q", m.sent[len(m.sent)-1].Body)
	}
	return code
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type staticCaptcha struct{ ok bool }

func (c staticCaptcha) Verify(context.Context, string, string) (bool, error) {
	return c.ok, nil
}

type countingCaptcha struct {
	mu sync.Mutex
	n  int
}

func (c *countingCaptcha) Verify(context.Context, string, string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return true, nil
}

func (c *countingCaptcha) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type refAvatarStore struct{}

func (refAvatarStore) Accept(_ context.Context, data []byte, _ string) (string, error) {
	return "avatar-ref-1", nil
}

func newTestEngine(t *testing.T, rdb *redis.Client, mailer Mailer) *Engine {
	t.Helper()

	eng, err := New().
		WithRedis(rdb).
		WithMailer(mailer).
		WithAvatarStore(refAvatarStore{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

// registerAccount walks the full signup flow and returns the session
// token issued at finalize.
func registerAccount(t *testing.T, eng *Engine, mailer *captureMailer, email, pass, username, name string) string {
	t.Helper()
	ctx := context.Background()

	if err := eng.SendRegistrationCode(ctx, email, pass, ""); err != nil {
		t.Fatalf("SendRegistrationCode failed: %v", err)
	}
	if err := eng.VerifyRegistrationCode(ctx, email, mailer.lastCode(t)); err != nil {
		t.Fatalf("VerifyRegistrationCode failed: %v", err)
	}
	token, err := eng.FinalizeRegistration(ctx, email, username, name)
	if err != nil {
		t.Fatalf("FinalizeRegistration failed: %v", err)
	}
	return token
}
