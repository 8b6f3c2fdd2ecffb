package exuberant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/exuberant-im/exuberant/internal/kv"
)

// threadMeta is the JSON value behind "th:<tid>". A and B are the
// participants in sorted order; the pair fully determines the thread id.
type threadMeta struct {
	Schema       int    `json:"v"`
	A            string `json:"a"`
	B            string `json:"b"`
	CreatedAt    int64  `json:"createdAt"`
	PinnedID     int64  `json:"pinnedId,omitempty"`
	LastActivity int64  `json:"lastActivity"`
}

func (m *threadMeta) has(email string) bool {
	return m.A == email || m.B == email
}

func (m *threadMeta) peerOf(email string) string {
	if m.A == email {
		return m.B
	}
	return m.A
}

var (
	errThreadMissing  = errors.New("thread not found")
	errMessageMissing = errors.New("message not found")
)

// ThreadID derives the deterministic conversation id for two addresses.
// Both orderings yield the same id.
func ThreadID(emailA, emailB string) string {
	a, b := normalizeEmail(emailA), normalizeEmail(emailB)
	if a > b {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "|" + b))
	return hex.EncodeToString(sum[:])
}

// dmStore owns thread metadata, the per-thread message sequence, the
// message rows, and each participant's recency index.
//
// Keys:
//
//	th:<tid>        thread metadata JSON
//	th:<tid>:seq    message id counter
//	msg:<tid>:<n>   message row JSON
//	th:<tid>:last   copy of the newest message, for listing
//	rec:<email>     thread ids, most recent first, capped
type dmStore struct {
	kv *kv.Gateway
}

func newDMStore(gateway *kv.Gateway) *dmStore {
	return &dmStore{kv: gateway}
}

func threadKey(tid string) string     { return "th:" + tid }
func threadSeqKey(tid string) string  { return "th:" + tid + ":seq" }
func threadLastKey(tid string) string { return "th:" + tid + ":last" }
func recencyKey(email string) string  { return "rec:" + email }

func messageKey(tid string, id int64) string {
	return "msg:" + tid + ":" + strconv.FormatInt(id, 10)
}

func (s *dmStore) GetMeta(ctx context.Context, tid string) (threadMeta, error) {
	var meta threadMeta
	raw, err := s.kv.GetBytes(ctx, threadKey(tid))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return meta, errThreadMissing
		}
		return meta, fmt.Errorf("thread get: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta.A == "" {
		return meta, errThreadMissing
	}
	return meta, nil
}

func (s *dmStore) PutMeta(ctx context.Context, tid string, meta threadMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("thread encode: %w", err)
	}
	if err := s.kv.Set(ctx, threadKey(tid), raw, 0); err != nil {
		return fmt.Errorf("thread put: %w", err)
	}
	return nil
}

// NextSeq allocates the next message id. The counter only ever grows, so
// ids within a thread are unique and gap-free even across writers.
func (s *dmStore) NextSeq(ctx context.Context, tid string) (int64, error) {
	n, err := s.kv.Incr(ctx, threadSeqKey(tid))
	if err != nil {
		return 0, fmt.Errorf("thread seq: %w", err)
	}
	return n, nil
}

// Seq reads the highest allocated message id without advancing it. A
// thread with no messages reports zero.
func (s *dmStore) Seq(ctx context.Context, tid string) (int64, error) {
	raw, err := s.kv.Get(ctx, threadSeqKey(tid))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("thread seq read: %w", err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("thread seq parse: %w", err)
	}
	return n, nil
}

func (s *dmStore) PutMessage(ctx context.Context, tid string, msg *Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("message encode: %w", err)
	}
	if err := s.kv.Set(ctx, messageKey(tid, msg.ID), raw, 0); err != nil {
		return fmt.Errorf("message put: %w", err)
	}
	return nil
}

func (s *dmStore) GetMessage(ctx context.Context, tid string, id int64) (*Message, error) {
	raw, err := s.kv.GetBytes(ctx, messageKey(tid, id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, errMessageMissing
		}
		return nil, fmt.Errorf("message get: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ID == 0 {
		return nil, errMessageMissing
	}
	return &msg, nil
}

// GetMessages loads the rows for ids in order via one pipelined batch.
// Rows missing from the store are skipped; the sequence counter is the
// source of truth for which ids were ever allocated.
func (s *dmStore) GetMessages(ctx context.Context, tid string, ids []int64) ([]*Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(tid, id)
	}
	rows, err := s.kv.GetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("message batch: %w", err)
	}

	out := make([]*Message, 0, len(ids))
	for _, raw := range rows {
		if raw == nil {
			continue
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.ID == 0 {
			continue
		}
		out = append(out, &msg)
	}
	return out, nil
}

func (s *dmStore) PutLast(ctx context.Context, tid string, msg *Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("last encode: %w", err)
	}
	if err := s.kv.Set(ctx, threadLastKey(tid), raw, 0); err != nil {
		return fmt.Errorf("last put: %w", err)
	}
	return nil
}

func (s *dmStore) GetLast(ctx context.Context, tid string) (*Message, error) {
	raw, err := s.kv.GetBytes(ctx, threadLastKey(tid))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("last get: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.ID == 0 {
		return nil, nil
	}
	return &msg, nil
}

// TouchRecency moves tid to the front of email's thread listing, trimming
// the oldest entry past cap. Remove-then-push keeps the list free of
// duplicates without needing a set type.
func (s *dmStore) TouchRecency(ctx context.Context, email, tid string, limit int) error {
	if err := s.kv.LRem(ctx, recencyKey(email), tid); err != nil {
		return fmt.Errorf("recency rem: %w", err)
	}
	if err := s.kv.LPush(ctx, recencyKey(email), tid); err != nil {
		return fmt.Errorf("recency push: %w", err)
	}
	if err := s.kv.LTrim(ctx, recencyKey(email), 0, int64(limit-1)); err != nil {
		return fmt.Errorf("recency trim: %w", err)
	}
	return nil
}

// ListRecency returns email's thread ids, most recent first.
func (s *dmStore) ListRecency(ctx context.Context, email string, limit int) ([]string, error) {
	ids, err := s.kv.LRange(ctx, recencyKey(email), 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("recency list: %w", err)
	}
	return ids, nil
}
