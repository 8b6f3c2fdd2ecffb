package exuberant

import "context"

// Schema versions for store records. Bump on field additions; records only
// ever grow, they are never reinterpreted.
const (
	accountSchemaVersion = 1
	pendingSchemaVersion = 1
	ticketSchemaVersion  = 1
	banSchemaVersion     = 1
	threadSchemaVersion  = 1
	messageSchemaVersion = 1
)

// Account is the directory record behind a normalized email.
type Account struct {
	Schema     int      `json:"v"`
	Email      string   `json:"email"`
	Username   string   `json:"username"`
	Name       string   `json:"name"`
	Bio        string   `json:"bio,omitempty"`
	AvatarRef  string   `json:"avatarRef,omitempty"`
	Badges     []string `json:"badges,omitempty"`
	Credential string   `json:"credential"`
	TwoFactor  bool     `json:"twofaEnabled,omitempty"`
	CreatedAt  int64    `json:"createdAt"`
	UpdatedAt  int64    `json:"updatedAt"`
}

// AccountView is the caller-facing projection of an [Account]: no
// credential record, no second-factor configuration.
type AccountView struct {
	Email     string   `json:"email"`
	Username  string   `json:"username"`
	Name      string   `json:"name"`
	Bio       string   `json:"bio,omitempty"`
	AvatarRef string   `json:"avatarRef,omitempty"`
	Badges    []string `json:"badges,omitempty"`
}

// View projects the account into its public shape.
func (a *Account) View() AccountView {
	return AccountView{
		Email:     a.Email,
		Username:  a.Username,
		Name:      a.Name,
		Bio:       a.Bio,
		AvatarRef: a.AvatarRef,
		Badges:    a.Badges,
	}
}

// LoginResult is returned by [Engine.Login]. Exactly one of SessionToken or
// TwoFactorTicket is set: accounts with a second factor enabled receive a
// ticket instead of a session.
type LoginResult struct {
	SessionToken      string
	TwoFactorRequired bool
	TwoFactorTicket   string
}

// MessageType discriminates message payloads.
type MessageType string

const (
	// MessageText is a plain text message.
	MessageText MessageType = "text"
	// MessageImage is an image reference message.
	MessageImage MessageType = "image"
)

// Message is one row in a thread. ID and Author never change after
// creation; Deleted is a one-way transition that clears the payload but
// keeps the row for ordering and pagination.
type Message struct {
	Schema   int         `json:"v"`
	ID       int64       `json:"id"`
	Author   string      `json:"author"`
	SentAt   int64       `json:"ts"`
	Type     MessageType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageRef string      `json:"imageRef,omitempty"`
	EditedAt int64       `json:"editedAt,omitempty"`
	Deleted  bool        `json:"deleted,omitempty"`
}

// ThreadSummary is one entry of a recency-ordered conversation listing.
type ThreadSummary struct {
	ThreadID     string      `json:"threadId"`
	Peer         AccountView `json:"peer"`
	LastMessage  *Message    `json:"lastMessage,omitempty"`
	PinnedID     int64       `json:"pinnedId,omitempty"`
	LastActivity int64       `json:"lastActivity"`
}

// ProfileUpdate carries partial profile mutations; nil fields are left
// untouched.
type ProfileUpdate struct {
	Name      *string
	Username  *string
	Bio       *string
	AvatarRef *string
}

// Mailer delivers outbound mail. Implementations are external
// collaborators; dispatch may be retried, so duplicate delivery must be
// tolerable to the recipient flow.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// CaptchaVerifier validates a client-solved challenge token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, originIP string) (bool, error)
}

// AvatarStore accepts raw image bytes and returns a storable reference, or
// rejects the upload.
type AvatarStore interface {
	Accept(ctx context.Context, data []byte, declaredType string) (string, error)
}
