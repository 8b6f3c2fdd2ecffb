// Package exuberant provides the authentication, session, and direct-message
// core of the Exuberant messenger, built entirely on a remote key-value
// store accessed through single-key commands.
//
// The package exposes [Engine], constructed through [Builder.Build]. Engine
// methods are safe to call from multiple goroutines; all coordination runs
// through the store, never through in-process state.
//
// # Architecture boundaries
//
// exuberant is the public surface. Store access, rate limiting, and token
// generation live under internal/ and are never exported. Outbound email,
// captcha verification, and avatar storage are collaborator interfaces
// ([Mailer], [CaptchaVerifier], [AvatarStore]) supplied by the host.
//
// # What this package must NOT do
//
//   - Assume the store offers transactions, locking, or compare-and-swap:
//     every multi-key workflow is a sequence of independently retryable
//     single-key operations.
//   - Render templates, deliver mail, or validate images itself.
//   - Expose raw store clients or key layouts in its public API.
package exuberant
