package exuberant

import (
	"context"
	"errors"
	"strings"
)

// imageDataPrefix is the required marker for inline image payloads.
const imageDataPrefix = "data:image/"

// OpenThread opens, or reopens, the conversation between the caller and
// the account behind peerUsername. Opening is idempotent: the thread id is
// derived from the participant pair, so both sides always land in the same
// conversation.
func (e *Engine) OpenThread(ctx context.Context, token, peerUsername string) (ThreadSummary, error) {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return ThreadSummary{}, err
	}
	if !validUsername(peerUsername) {
		return ThreadSummary{}, ErrBadUsername
	}

	peer, err := e.directory.GetByUsername(ctx, peerUsername)
	if err != nil {
		if errors.Is(err, errAccountNotFound) {
			return ThreadSummary{}, ErrPeerNotFound
		}
		return ThreadSummary{}, storeErr(err)
	}
	if peer.Email == acct.Email {
		return ThreadSummary{}, ErrBadPayload
	}

	tid := ThreadID(acct.Email, peer.Email)
	meta, err := e.threads.GetMeta(ctx, tid)
	if err != nil {
		if !errors.Is(err, errThreadMissing) {
			return ThreadSummary{}, storeErr(err)
		}
		a, b := acct.Email, peer.Email
		if a > b {
			a, b = b, a
		}
		meta = threadMeta{
			Schema:       threadSchemaVersion,
			A:            a,
			B:            b,
			CreatedAt:    now(),
			LastActivity: now(),
		}
		if err := e.threads.PutMeta(ctx, tid, meta); err != nil {
			return ThreadSummary{}, storeErr(err)
		}
	}

	if err := e.touchBoth(ctx, tid, meta); err != nil {
		return ThreadSummary{}, err
	}

	last, err := e.threads.GetLast(ctx, tid)
	if err != nil {
		return ThreadSummary{}, storeErr(err)
	}

	e.metricInc(MetricThreadOpened)
	return ThreadSummary{
		ThreadID:     tid,
		Peer:         peer.View(),
		LastMessage:  last,
		PinnedID:     meta.PinnedID,
		LastActivity: meta.LastActivity,
	}, nil
}

// SendMessage appends one message to a thread the caller participates in.
// Message ids within a thread are allocated from a monotonic counter, so
// readers can page by id without missing rows.
func (e *Engine) SendMessage(ctx context.Context, token, threadID string, typ MessageType, payload string) (*Message, error) {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return nil, err
	}

	meta, err := e.loadThreadFor(ctx, threadID, acct.Email)
	if err != nil {
		return nil, err
	}

	if err := e.allowKey(ctx, bucketDMSend, acct.Email); err != nil {
		return nil, err
	}

	msg := Message{
		Schema: messageSchemaVersion,
		Author: acct.Email,
		SentAt: now(),
		Type:   typ,
	}
	switch typ {
	case MessageText:
		payload = strings.TrimSpace(payload)
		if payload == "" || len(payload) > e.config.DM.MaxTextLen {
			return nil, ErrBadPayload
		}
		msg.Text = payload
	case MessageImage:
		if !strings.HasPrefix(payload, imageDataPrefix) || len(payload) > e.config.DM.MaxImageBytes {
			return nil, ErrBadPayload
		}
		msg.ImageRef = payload
	default:
		return nil, ErrBadPayload
	}

	id, err := e.threads.NextSeq(ctx, threadID)
	if err != nil {
		return nil, storeErr(err)
	}
	msg.ID = id

	if err := e.threads.PutMessage(ctx, threadID, &msg); err != nil {
		return nil, storeErr(err)
	}
	if err := e.threads.PutLast(ctx, threadID, &msg); err != nil {
		return nil, storeErr(err)
	}

	meta.LastActivity = msg.SentAt
	if err := e.threads.PutMeta(ctx, threadID, meta); err != nil {
		return nil, storeErr(err)
	}
	if err := e.touchBoth(ctx, threadID, meta); err != nil {
		return nil, err
	}

	e.metricInc(MetricMessageSent)
	return &msg, nil
}

// FetchMessages returns up to the configured batch of messages with ids
// strictly greater than after, in ascending id order. Deleted messages are
// returned as tombstones so clients can render the gap.
func (e *Engine) FetchMessages(ctx context.Context, token, threadID string, after int64) ([]*Message, error) {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return nil, err
	}
	if _, err := e.loadThreadFor(ctx, threadID, acct.Email); err != nil {
		return nil, err
	}
	if after < 0 {
		after = 0
	}

	seq, err := e.threads.Seq(ctx, threadID)
	if err != nil {
		return nil, storeErr(err)
	}
	if after >= seq {
		return nil, nil
	}

	hi := after + int64(e.config.DM.FetchBatchLimit)
	if hi > seq {
		hi = seq
	}
	ids := make([]int64, 0, hi-after)
	for id := after + 1; id <= hi; id++ {
		ids = append(ids, id)
	}

	msgs, err := e.threads.GetMessages(ctx, threadID, ids)
	if err != nil {
		return nil, storeErr(err)
	}
	return msgs, nil
}

// EditMessage rewrites the text of a message the caller authored. Image
// messages and tombstones cannot be edited.
func (e *Engine) EditMessage(ctx context.Context, token, threadID string, id int64, text string) (*Message, error) {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return nil, err
	}
	if _, err := e.loadThreadFor(ctx, threadID, acct.Email); err != nil {
		return nil, err
	}

	msg, err := e.loadMessage(ctx, threadID, id)
	if err != nil {
		return nil, err
	}
	if msg.Author != acct.Email {
		return nil, ErrNotAuthor
	}
	if msg.Deleted {
		return nil, ErrMessageDeleted
	}
	if msg.Type != MessageText {
		return nil, ErrBadPayload
	}

	text = strings.TrimSpace(text)
	if text == "" || len(text) > e.config.DM.MaxTextLen {
		return nil, ErrBadPayload
	}

	msg.Text = text
	msg.EditedAt = now()
	if err := e.threads.PutMessage(ctx, threadID, msg); err != nil {
		return nil, storeErr(err)
	}
	if err := e.refreshLast(ctx, threadID, msg); err != nil {
		return nil, err
	}

	e.metricInc(MetricMessageEdited)
	return msg, nil
}

// DeleteMessage tombstones a message the caller authored: the row stays
// for ordering, the payload is cleared. Deleting twice is a no-op.
func (e *Engine) DeleteMessage(ctx context.Context, token, threadID string, id int64) error {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return err
	}
	if _, err := e.loadThreadFor(ctx, threadID, acct.Email); err != nil {
		return err
	}

	msg, err := e.loadMessage(ctx, threadID, id)
	if err != nil {
		return err
	}
	if msg.Author != acct.Email {
		return ErrNotAuthor
	}
	if msg.Deleted {
		return nil
	}

	msg.Deleted = true
	msg.Text = ""
	msg.ImageRef = ""
	if err := e.threads.PutMessage(ctx, threadID, msg); err != nil {
		return storeErr(err)
	}
	if err := e.refreshLast(ctx, threadID, msg); err != nil {
		return err
	}

	e.metricInc(MetricMessageDeleted)
	return nil
}

// PinMessage marks one message of the thread as pinned; id zero clears the
// pin. Either participant may pin. The pin is a last-set-wins pointer: any
// existing id qualifies, tombstoned rows included, and deleting the pinned
// message leaves the pointer in place.
func (e *Engine) PinMessage(ctx context.Context, token, threadID string, id int64) error {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return err
	}
	meta, err := e.loadThreadFor(ctx, threadID, acct.Email)
	if err != nil {
		return err
	}

	if id != 0 {
		if _, err := e.loadMessage(ctx, threadID, id); err != nil {
			return err
		}
	}

	meta.PinnedID = id
	if err := e.threads.PutMeta(ctx, threadID, meta); err != nil {
		return storeErr(err)
	}
	return nil
}

// ListThreads returns the caller's conversations, most recently active
// first. Threads whose metadata has gone unreadable are skipped rather
// than failing the whole listing.
func (e *Engine) ListThreads(ctx context.Context, token string) ([]ThreadSummary, error) {
	acct, err := e.resolveAccount(ctx, token)
	if err != nil {
		return nil, err
	}

	ids, err := e.threads.ListRecency(ctx, acct.Email, e.config.DM.RecencyCap)
	if err != nil {
		return nil, storeErr(err)
	}

	out := make([]ThreadSummary, 0, len(ids))
	for _, tid := range ids {
		meta, err := e.threads.GetMeta(ctx, tid)
		if err != nil {
			if errors.Is(err, errThreadMissing) {
				continue
			}
			return nil, storeErr(err)
		}
		if !meta.has(acct.Email) {
			continue
		}

		peer, err := e.directory.Get(ctx, meta.peerOf(acct.Email))
		if err != nil {
			if errors.Is(err, errAccountNotFound) {
				continue
			}
			return nil, storeErr(err)
		}

		last, err := e.threads.GetLast(ctx, tid)
		if err != nil {
			return nil, storeErr(err)
		}

		out = append(out, ThreadSummary{
			ThreadID:     tid,
			Peer:         peer.View(),
			LastMessage:  last,
			PinnedID:     meta.PinnedID,
			LastActivity: meta.LastActivity,
		})
	}
	return out, nil
}

// loadThreadFor loads thread metadata and enforces membership. The
// membership check runs before any message access so outsiders cannot
// probe thread contents.
func (e *Engine) loadThreadFor(ctx context.Context, threadID, email string) (threadMeta, error) {
	meta, err := e.threads.GetMeta(ctx, threadID)
	if err != nil {
		if errors.Is(err, errThreadMissing) {
			return meta, ErrThreadNotFound
		}
		return meta, storeErr(err)
	}
	if !meta.has(email) {
		return meta, ErrNotParticipant
	}
	return meta, nil
}

func (e *Engine) loadMessage(ctx context.Context, threadID string, id int64) (*Message, error) {
	msg, err := e.threads.GetMessage(ctx, threadID, id)
	if err != nil {
		if errors.Is(err, errMessageMissing) {
			return nil, ErrMessageNotFound
		}
		return nil, storeErr(err)
	}
	return msg, nil
}

// refreshLast keeps the cached newest-message copy in step after an edit
// or delete of what may be the newest row.
func (e *Engine) refreshLast(ctx context.Context, threadID string, msg *Message) error {
	last, err := e.threads.GetLast(ctx, threadID)
	if err != nil {
		return storeErr(err)
	}
	if last == nil || last.ID != msg.ID {
		return nil
	}
	if err := e.threads.PutLast(ctx, threadID, msg); err != nil {
		return storeErr(err)
	}
	return nil
}

func (e *Engine) touchBoth(ctx context.Context, tid string, meta threadMeta) error {
	if err := e.threads.TouchRecency(ctx, meta.A, tid, e.config.DM.RecencyCap); err != nil {
		return storeErr(err)
	}
	if err := e.threads.TouchRecency(ctx, meta.B, tid, e.config.DM.RecencyCap); err != nil {
		return storeErr(err)
	}
	return nil
}
