package internaldefs

import (
	exuberant "github.com/exuberant-im/exuberant"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   exuberant.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name.
type HistogramDef struct {
	ID   exuberant.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: exuberant.MetricRegisterCodeSent, Name: "exuberant_register_code_sent_total", Help: "Verification codes dispatched."},
	{ID: exuberant.MetricRegisterCodeFailed, Name: "exuberant_register_code_failed_total", Help: "Failed verification code dispatches."},
	{ID: exuberant.MetricRegisterVerified, Name: "exuberant_register_verified_total", Help: "Successful code verifications."},
	{ID: exuberant.MetricRegisterVerifyFailed, Name: "exuberant_register_verify_failed_total", Help: "Wrong or expired verification codes."},
	{ID: exuberant.MetricRegisterFinalized, Name: "exuberant_register_finalized_total", Help: "Accounts created."},
	{ID: exuberant.MetricRegisterDuplicate, Name: "exuberant_register_duplicate_total", Help: "Finalize attempts against existing accounts."},
	{ID: exuberant.MetricLoginSuccess, Name: "exuberant_login_success_total", Help: "Successful password logins."},
	{ID: exuberant.MetricLoginFailure, Name: "exuberant_login_failure_total", Help: "Rejected credentials."},
	{ID: exuberant.MetricLoginBanned, Name: "exuberant_login_banned_total", Help: "Logins rejected for banned accounts."},
	{ID: exuberant.MetricTwoFactorRequired, Name: "exuberant_twofactor_required_total", Help: "Logins deferred to a second factor."},
	{ID: exuberant.MetricTwoFactorSuccess, Name: "exuberant_twofactor_success_total", Help: "Completed second-factor challenges."},
	{ID: exuberant.MetricTwoFactorFailure, Name: "exuberant_twofactor_failure_total", Help: "Failed second-factor challenges."},
	{ID: exuberant.MetricLogout, Name: "exuberant_logout_total", Help: "Explicit session terminations."},
	{ID: exuberant.MetricSessionCreated, Name: "exuberant_session_created_total", Help: "Sessions issued."},
	{ID: exuberant.MetricResolveSuccess, Name: "exuberant_resolve_success_total", Help: "Token resolutions that found a live session."},
	{ID: exuberant.MetricResolveFailure, Name: "exuberant_resolve_failure_total", Help: "Resolutions of unknown or expired tokens."},
	{ID: exuberant.MetricRateLimitHit, Name: "exuberant_rate_limit_hit_total", Help: "Requests rejected by a rate bucket."},
	{ID: exuberant.MetricCredentialUpgraded, Name: "exuberant_credential_upgraded_total", Help: "Password records rehashed on login."},
	{ID: exuberant.MetricAccountBanned, Name: "exuberant_account_banned_total", Help: "Administrative bans applied."},
	{ID: exuberant.MetricProfileUpdated, Name: "exuberant_profile_updated_total", Help: "Profile mutations applied."},
	{ID: exuberant.MetricThreadOpened, Name: "exuberant_thread_opened_total", Help: "Conversations opened or reopened."},
	{ID: exuberant.MetricMessageSent, Name: "exuberant_message_sent_total", Help: "Messages appended to threads."},
	{ID: exuberant.MetricMessageEdited, Name: "exuberant_message_edited_total", Help: "In-place message edits."},
	{ID: exuberant.MetricMessageDeleted, Name: "exuberant_message_deleted_total", Help: "Message tombstones written."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: exuberant.MetricResolveLatency, Name: "exuberant_resolve_latency_seconds", Help: "Session resolution latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the bounds as metric-name-safe suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// both exporters expose.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
