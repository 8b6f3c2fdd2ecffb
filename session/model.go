package session

// SchemaVersion is the current session record schema. Bump when adding
// fields; old records decode forward because fields are only ever added.
const SchemaVersion = 1

// Record is the server-side value behind an opaque session token.
type Record struct {
	Schema    int    `json:"v"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"createdAt"`
}
