package domain

// SessionEntry is a single persisted chat message inside a durable session.
type SessionEntry struct {
	PK        string
	SK        string
	SessionID string
	Role      string
	Content   string
	TTL       int64
}
