// Package httpapi exposes the engine as a one-action-per-call JSON API.
//
// Sessions travel in an HTTP-only, same-site cookie holding the opaque
// token; no token content is client-readable. Every response is JSON with
// an "ok" flag; failures add a stable machine-readable error code and
// never a stack trace. A panic in any handler degrades to a generic 500
// body.
//
// # What this package must NOT do
//
//   - Reach past the [exuberant.Engine] into stores.
//   - Put account emails or tokens into log lines.
//   - Serve HTML; this is the JSON surface only.
package httpapi
