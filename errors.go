package exuberant

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is invoked before
	// Builder.Build wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable is the generic transient-infrastructure error. The
	// underlying operation may or may not have happened.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrBadEmail is returned for a syntactically invalid email address.
	ErrBadEmail = errors.New("invalid email")
	// ErrBadPassword is returned when a password violates the 8–72 policy.
	ErrBadPassword = errors.New("password must be 8-72 characters")
	// ErrBadUsername is returned for usernames outside [a-z0-9_]{3,20} or
	// containing a double underscore.
	ErrBadUsername = errors.New("invalid username")
	// ErrBadName is returned for display names outside 1–40 characters.
	ErrBadName = errors.New("invalid display name")
	// ErrBadBio is returned for bios longer than 240 characters.
	ErrBadBio = errors.New("invalid bio")
	// ErrBadBadge is returned for badges outside the closed vocabulary.
	ErrBadBadge = errors.New("invalid badge")

	// ErrCaptchaRequired is returned when captcha verification is configured
	// and the challenge token is missing or rejected.
	ErrCaptchaRequired = errors.New("captcha verification failed")
	// ErrAccountExists is returned when registration targets an email that
	// already owns an account.
	ErrAccountExists = errors.New("account already exists")
	// ErrNoPending is returned when no live pending registration exists for
	// the email.
	ErrNoPending = errors.New("no pending registration")
	// ErrInvalidCode is returned on a one-time code mismatch.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrNotVerified is returned when finalize runs before verify_code.
	ErrNotVerified = errors.New("registration not verified")
	// ErrUsernameTaken is returned when the username reservation belongs to
	// a different email.
	ErrUsernameTaken = errors.New("username taken")
	// ErrMailDispatch is returned when the outbound mail collaborator fails.
	ErrMailDispatch = errors.New("mail dispatch failed")

	// ErrInvalidCredentials is returned for unknown accounts and wrong
	// passwords alike; login does not reveal which.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountBanned is returned for every authenticated action by a
	// banned account, including login and 2FA confirmation.
	ErrAccountBanned = errors.New("account banned")
	// ErrTicketInvalid is returned for unknown, expired, or mismatched
	// second-factor tickets.
	ErrTicketInvalid = errors.New("second-factor ticket invalid")
	// ErrRateLimited is returned when a request exceeded its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthorized is returned when no live session backs a token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound is returned when an account record is missing.
	ErrUserNotFound = errors.New("user not found")
	// ErrPeerNotFound is returned when a DM peer username resolves to no
	// account.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrThreadNotFound is returned for unknown thread identifiers.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrNotParticipant is returned when the caller is not one of the
	// thread's two endpoints. Thread and message lookups behind it are never
	// performed, so non-participants learn nothing about thread contents.
	ErrNotParticipant = errors.New("not a thread participant")
	// ErrNotAuthor is returned when edit/delete is attempted on another
	// author's message.
	ErrNotAuthor = errors.New("not the message author")
	// ErrMessageNotFound is returned for sequence numbers with no row.
	ErrMessageNotFound = errors.New("message not found")
	// ErrMessageDeleted is returned when editing a soft-deleted message.
	ErrMessageDeleted = errors.New("message deleted")
	// ErrBadPayload is returned when a message payload violates its type's
	// constraints.
	ErrBadPayload = errors.New("invalid message payload")
)

// Code maps an engine error to its stable machine-readable wire code.
// Unknown errors map to INTERNAL so transport layers never leak detail.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrBadEmail):
		return "BAD_EMAIL"
	case errors.Is(err, ErrBadPassword):
		return "BAD_PASSWORD"
	case errors.Is(err, ErrBadUsername):
		return "BAD_USERNAME"
	case errors.Is(err, ErrBadName):
		return "BAD_NAME"
	case errors.Is(err, ErrBadBio):
		return "BAD_BIO"
	case errors.Is(err, ErrBadBadge):
		return "BAD_BADGE"
	case errors.Is(err, ErrCaptchaRequired):
		return "CAPTCHA_FAILED"
	case errors.Is(err, ErrAccountExists):
		return "ACCOUNT_EXISTS"
	case errors.Is(err, ErrNoPending):
		return "NO_PENDING"
	case errors.Is(err, ErrInvalidCode):
		return "INVALID_CODE"
	case errors.Is(err, ErrNotVerified):
		return "NOT_VERIFIED"
	case errors.Is(err, ErrUsernameTaken):
		return "USERNAME_TAKEN"
	case errors.Is(err, ErrMailDispatch):
		return "MAIL_DISPATCH"
	case errors.Is(err, ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, ErrAccountBanned):
		return "BANNED"
	case errors.Is(err, ErrTicketInvalid):
		return "TICKET_INVALID"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrUnauthorized):
		return "NO_SESSION"
	case errors.Is(err, ErrUserNotFound):
		return "NO_ACCOUNT"
	case errors.Is(err, ErrPeerNotFound):
		return "PEER_NOT_FOUND"
	case errors.Is(err, ErrThreadNotFound):
		return "THREAD_NOT_FOUND"
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrNotAuthor):
		return "FORBIDDEN"
	case errors.Is(err, ErrMessageNotFound):
		return "MESSAGE_NOT_FOUND"
	case errors.Is(err, ErrMessageDeleted):
		return "MESSAGE_DELETED"
	case errors.Is(err, ErrBadPayload):
		return "BAD_PAYLOAD"
	default:
		return "INTERNAL"
	}
}
