// Package kv provides the single gateway through which every other package
// talks to the remote key-value store.
//
// # Command surface
//
// The backing store is treated as a non-transactional primitive. Only
// single-key commands are exposed: GET/SET/DEL, INCR, EXPIRE, and the list
// operations RPUSH/LPUSH/LREM/LTRIM/LRANGE/LLEN. Multi-key reads use a
// pipeline of independent GETs, which is a batching optimization, not a
// transaction.
//
// # Timeouts
//
// Every call derives a bounded deadline from the configured operation
// timeout. A timeout is a transient failure ([ErrUnavailable]) and never
// means "the operation did not happen"; callers must be idempotent or accept
// at-least-once side effects.
//
// # What this package must NOT do
//
//   - Use Lua scripts, WATCH/MULTI, SETNX, or any compare-and-swap.
//   - Interpret record payloads (stores own their own encoding).
//   - Be imported outside the exuberant module.
package kv
