package exuberant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
)

// dmFixture registers two accounts and opens the thread between them.
func dmFixture(t *testing.T, rdb *redis.Client, mailer *captureMailer, eng *Engine) (tokenA, tokenB, threadID string) {
	t.Helper()

	tokenA = registerAccount(t, eng, mailer, "ana@example.com", "correct horse battery", "ana_user", "Ana")
	tokenB = registerAccount(t, eng, mailer, "ben@example.com", "correct horse battery", "ben_user", "Ben")

	sum, err := eng.OpenThread(context.Background(), tokenA, "ben_user")
	if err != nil {
		t.Fatalf("OpenThread failed: %v", err)
	}
	return tokenA, tokenB, sum.ThreadID
}

func TestThreadIDSymmetry(t *testing.T) {
	a := ThreadID("ana@example.com", "ben@example.com")
	b := ThreadID("BEN@example.com", "Ana@example.com")
	if a != b {
		t.Fatalf("thread id not symmetric: %q vs %q", a, b)
	}
	if ThreadID("ana@example.com", "cleo@example.com") == a {
		t.Fatal("distinct pairs collided")
	}
}

func TestOpenThreadIdempotent(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	tokenA, tokenB, tid := dmFixture(t, rdb, mailer, eng)

	again, err := eng.OpenThread(ctx, tokenA, "ben_user")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if again.ThreadID != tid {
		t.Fatalf("reopen produced a different thread: %q vs %q", again.ThreadID, tid)
	}

	fromPeer, err := eng.OpenThread(ctx, tokenB, "ana_user")
	if err != nil {
		t.Fatalf("peer open failed: %v", err)
	}
	if fromPeer.ThreadID != tid {
		t.Fatalf("peer landed in a different thread: %q vs %q", fromPeer.ThreadID, tid)
	}
}

func TestOpenThreadUnknownPeer(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)

	token := registerAccount(t, eng, mailer, "solo@example.com", "correct horse battery", "solo_user", "Solo")

	_, err := eng.OpenThread(context.Background(), token, "ghost_user")
	if !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestOpenThreadWithSelf(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)

	token := registerAccount(t, eng, mailer, "me@example.com", "correct horse battery", "me_user", "Me")

	_, err := eng.OpenThread(context.Background(), token, "me_user")
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload, got %v", err)
	}
}

func TestSendAndFetchSequence(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	tokenA, tokenB, tid := dmFixture(t, rdb, mailer, eng)

	for i, text := range []string{"first", "second", "third"} {
		msg, err := eng.SendMessage(ctx, tokenA, tid, MessageText, text)
		if err != nil {
			t.Fatalf("SendMessage %d failed: %v", i, err)
		}
		if msg.ID != int64(i+1) {
			t.Fatalf("message %d got id %d", i, msg.ID)
		}
	}

	// Fetch after id 1 returns 2 and 3 in ascending order.
	msgs, err := eng.FetchMessages(ctx, tokenB, tid, 1)
	if err != nil {
		t.Fatalf("FetchMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != 2 || msgs[1].ID != 3 {
		t.Fatalf("unexpected page: %+v", msgs)
	}
	if msgs[0].Text != "second" || msgs[1].Text != "third" {
		t.Fatalf("unexpected texts: %q %q", msgs[0].Text, msgs[1].Text)
	}

	// Fetch past the end is empty.
	msgs, err = eng.FetchMessages(ctx, tokenA, tid, 3)
	if err != nil {
		t.Fatalf("FetchMessages past end failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty page, got %d messages", len(msgs))
	}
}

func TestSendPayloadValidation(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	tokenA, _, tid := dmFixture(t, rdb, mailer, eng)

	if _, err := eng.SendMessage(ctx, tokenA, tid, MessageText, "   "); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("blank text: expected ErrBadPayload, got %v", err)
	}
	long := strings.Repeat("x", defaultConfig().DM.MaxTextLen+1)
	if _, err := eng.SendMessage(ctx, tokenA, tid, MessageText, long); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("oversized text: expected ErrBadPayload, got %v", err)
	}
	if _, err := eng.SendMessage(ctx, tokenA, tid, MessageImage, "not-a-data-uri"); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("bad image payload: expected ErrBadPayload, got %v", err)
	}
	if _, err := eng.SendMessage(ctx, tokenA, tid, "sticker", "x"); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("unknown type: expected ErrBadPayload, got %v", err)
	}

	if _, err := eng.SendMessage(ctx, tokenA, tid, MessageImage, "data:image/png;base64,iVBORw0KGgo="); err != nil {
		t.Fatalf("valid image payload rejected: %v", err)
	}
}

func TestOutsiderCannotTouchThread(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	_, _, tid := dmFixture(t, rdb, mailer, eng)
	outsider := registerAccount(t, eng, mailer, "eve@example.com", "correct horse battery", "eve_user", "Eve")

	if _, err := eng.SendMessage(ctx, outsider, tid, MessageText, "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("send: expected ErrNotParticipant, got %v", err)
	}
	if _, err := eng.FetchMessages(ctx, outsider, tid, 0); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("fetch: expected ErrNotParticipant, got %v", err)
	}
}

func TestEditMessage(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	tokenA, tokenB, tid := dmFixture(t, rdb, mailer, eng)

	msg, err := eng.SendMessage(ctx, tokenA, tid, MessageText, "draft")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	edited, err := eng.EditMessage(ctx, tokenA, tid, msg.ID, "final")
	if err != nil {
		t.Fatalf("EditMessage failed: %v", err)
	}
	if edited.Text != "final" || edited.EditedAt == 0 {
		t.Fatalf("edit not applied: %+v", edited)
	}

	// Only the author may edit.
	if _, err := eng.EditMessage(ctx, tokenB, tid, msg.ID, "hijack"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}
}

func TestDeleteMessageLeavesTombstone(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	tokenA, tokenB, tid := dmFixture(t, rdb, mailer, eng)

	if _, err := eng.SendMessage(ctx, tokenA, tid, MessageText, "one"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	target, err := eng.SendMessage(ctx, tokenA, tid, MessageText, "two")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, err := eng.SendMessage(ctx, tokenA, tid, MessageText, "three"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if err := eng.DeleteMessage(ctx, tokenA, tid, target.ID); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}
	// Deleting again is a no-op.
	if err := eng.DeleteMessage(ctx, tokenA, tid, target.ID); err != nil {
		t.Fatalf("second DeleteMessage failed: %v", err)
	}

	msgs, err := eng.FetchMessages(ctx, tokenB, tid, 0)
	if err != nil {
		t.Fatalf("FetchMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("tombstone missing from page: %d messages", len(msgs))
	}
	if !msgs[1].Deleted || msgs[1].Text != "" {
		t.Fatalf("tombstone carries payload: %+v", msgs[1])
	}

	// Tombstones cannot be edited.
	if _, err := eng.EditMessage(ctx, tokenA, tid, target.ID, "revive"); !errors.Is(err, ErrMessageDeleted) {
		t.Fatalf("expected ErrMessageDeleted, got %v", err)
	}
}

func TestPinMessage(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	tokenA, tokenB, tid := dmFixture(t, rdb, mailer, eng)

	msg, err := eng.SendMessage(ctx, tokenA, tid, MessageText, "pin me")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	// Either participant may pin.
	if err := eng.PinMessage(ctx, tokenB, tid, msg.ID); err != nil {
		t.Fatalf("PinMessage failed: %v", err)
	}

	sum, err := eng.OpenThread(ctx, tokenA, "ben_user")
	if err != nil {
		t.Fatalf("OpenThread failed: %v", err)
	}
	if sum.PinnedID != msg.ID {
		t.Fatalf("pin not recorded: %+v", sum)
	}

	// The pin is a bare pointer; deleting the pinned message leaves it.
	if err := eng.DeleteMessage(ctx, tokenA, tid, msg.ID); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}
	sum, err = eng.OpenThread(ctx, tokenA, "ben_user")
	if err != nil {
		t.Fatalf("OpenThread failed: %v", err)
	}
	if sum.PinnedID != msg.ID {
		t.Fatalf("pin did not survive deletion: %+v", sum)
	}

	// A tombstone is still an existing id and stays pinnable.
	if err := eng.PinMessage(ctx, tokenB, tid, 0); err != nil {
		t.Fatalf("PinMessage clear failed: %v", err)
	}
	if err := eng.PinMessage(ctx, tokenB, tid, msg.ID); err != nil {
		t.Fatalf("PinMessage on tombstone failed: %v", err)
	}

	// An id that was never allocated does not qualify.
	if err := eng.PinMessage(ctx, tokenB, tid, msg.ID+50); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestListThreadsRecency(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}
	eng := newTestEngine(t, rdb, mailer)
	ctx := context.Background()

	tokenA, _, _ := dmFixture(t, rdb, mailer, eng)
	registerAccount(t, eng, mailer, "cleo@example.com", "correct horse battery", "cleo_user", "Cleo")

	second, err := eng.OpenThread(ctx, tokenA, "cleo_user")
	if err != nil {
		t.Fatalf("OpenThread failed: %v", err)
	}
	if _, err := eng.SendMessage(ctx, tokenA, second.ThreadID, MessageText, "hi cleo"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	threads, err := eng.ListThreads(ctx, tokenA)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	if threads[0].Peer.Username != "cleo_user" {
		t.Fatalf("most recent thread not first: %+v", threads[0].Peer)
	}
	if threads[0].LastMessage == nil || threads[0].LastMessage.Text != "hi cleo" {
		t.Fatalf("last message missing: %+v", threads[0].LastMessage)
	}

	// Activity in the older thread moves it back to the front.
	if _, err := eng.SendMessage(ctx, tokenA, threads[1].ThreadID, MessageText, "hi ben"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	threads, err = eng.ListThreads(ctx, tokenA)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if threads[0].Peer.Username != "ben_user" {
		t.Fatalf("recency not updated: %+v", threads[0].Peer)
	}
}

func TestSendRateLimited(t *testing.T) {
	_, rdb := newTestRedis(t)
	mailer := &captureMailer{}

	cfg := defaultConfig()
	cfg.RateLimits[bucketDMSend] = rateBucket(2)
	eng, err := New().WithConfig(cfg).WithRedis(rdb).WithMailer(mailer).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(eng.Close)
	ctx := context.Background()

	tokenA, _, tid := dmFixture(t, rdb, mailer, eng)

	for i := 0; i < 2; i++ {
		if _, err := eng.SendMessage(ctx, tokenA, tid, MessageText, "spam"); err != nil {
			t.Fatalf("SendMessage %d failed: %v", i, err)
		}
	}
	if _, err := eng.SendMessage(ctx, tokenA, tid, MessageText, "spam"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
