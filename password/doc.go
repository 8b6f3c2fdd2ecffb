// Package password implements credential hashing, verification, and scheme
// migration.
//
// # Output format
//
// Current records are tagged strings:
//
//	pbkdf2$<iterations>$<saltHex>$<digestHex>
//
// with a per-record random salt, SHA-256, and a 256-bit digest. A legacy
// unsalted keyed-hash record ("legacy$<digestHex>") still verifies; callers
// re-hash on the next successful login when [PBKDF2.NeedsUpgrade] reports
// true. Migration is opportunistic, never eager.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (the
// 8–72 character bound) is a request-level concern enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials — callers supply plaintext and receive
//     records.
//   - Log plaintext passwords or derived digests.
//   - Import any other exuberant package.
package password
