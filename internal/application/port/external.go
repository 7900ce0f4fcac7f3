package port

import "context"

// Notification is the body of the outbound email trigger
type Notification struct {
	Type     string `json:"type"`
	RecordID string `json:"recordId"`
}

// Notifier triggers outbound email. Callers treat failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// IdempotencyStore remembers which record a client-supplied key created
// during a create. Reserve claims a key atomically; the winner binds it with
// Remember or frees it with Release.
type IdempotencyStore interface {
	Reserve(scope, key string) (recordID string, reserved bool, err error)
	Remember(scope, key, recordID string) error
	Release(scope, key string) error
}

// TokenVerifier resolves a bearer token to the signed-in user's ID
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}
