package domain

import "time"

// Request records a completed transition under its idempotency key, so a retry of the same
// (entity, from, to, request id) tuple returns the original receipt instead of appending again.
// Records are stored per entity and request id.
type Request struct {
	RequestID   string
	EntityID    string
	FromState   string
	ToState     string
	AuditID     string
	BlockNumber int64
	BlockHash   string
	CreatedAt   time.Time
}

// Matches reports whether a retry for entityID from -> to is the request r recorded.
// An empty from matches any recorded origin state.
func (r *Request) Matches(entityID, from, to string) bool {
	if r.EntityID != entityID || r.ToState != to {
		return false
	}
	return from == "" || from == r.FromState
}
