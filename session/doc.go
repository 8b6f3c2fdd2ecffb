// Package session provides store-backed persistence for opaque session
// tokens.
//
// # Record format
//
// Sessions are stored as schema-versioned JSON records mapping the token to
// its owning account's normalized email. Tokens carry 256 bits of entropy
// and are never derived from account data; the record content is the single
// source of truth and nothing about it is client-readable.
//
// # Lifetime
//
// A session lives for its configured TTL from issuance. Reads do not slide
// the expiry; only reissuance refreshes a session. Deletion is idempotent.
//
// # What this package must NOT do
//
//   - Inspect ban state or account records (Engine responsibility).
//   - Import the root exuberant package.
package session
