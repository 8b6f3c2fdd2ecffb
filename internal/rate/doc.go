// Package rate provides fixed-window rate limiting built on the store's
// INCR and EXPIRE primitives.
//
// # Window semantics
//
// Counters are keyed by (bucket, origin). The window TTL is set only by
// whichever request observes count==1, so a burst straddling a window
// boundary can admit slightly more than the nominal limit. That is an
// accepted approximation of the design, not a bug.
//
// # What this package must NOT do
//
//   - Implement per-action policy (bucket budgets live in the root Config).
//   - Hold in-process counters; the remote increment is the only
//     serialization point.
package rate
