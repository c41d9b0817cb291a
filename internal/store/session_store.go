package store

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session key is missing or has expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the key/value backend holding serialized sessions.
// Expiry is enforced by the backend itself; a key past its TTL is indistinguishable
// from a key that was never written.
type SessionStore interface {
	// Set writes payload under key and (re)sets its TTL in a single operation.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Replace is Set restricted to a key that still exists, so a write cannot
	// recreate a key removed by a concurrent Delete.
	// Returns ErrSessionNotFound if the key is missing or expired.
	Replace(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Get returns the payload stored under key.
	// Returns ErrSessionNotFound if the key is missing or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
