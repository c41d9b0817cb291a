package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/bookstore/internal/store"
)

type sessionEntry struct {
	payload   []byte
	expiresAt time.Time
}

// SessionStore implements store.SessionStore using in-memory storage.
// Entries past their TTL are reported as missing and reclaimed lazily.
// This implementation is for testing only - data is lost on restart.
type SessionStore struct {
	mu  sync.Mutex
	now func() time.Time

	entries map[string]sessionEntry
}

var _ store.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		now:     time.Now,
		entries: make(map[string]sessionEntry),
	}
}

// WithClock replaces the clock used for expiry, for tests.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.now = now
	return s
}

// Set writes a payload and resets its TTL.
func (s *SessionStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Clone to avoid external modifications
	clone := append([]byte(nil), payload...)
	s.entries[key] = sessionEntry{payload: clone, expiresAt: s.now().Add(ttl)}

	return nil
}

// Replace overwrites a live entry and resets its TTL.
func (s *SessionStore) Replace(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists || !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return store.ErrSessionNotFound
	}

	s.entries[key] = sessionEntry{payload: append([]byte(nil), payload...), expiresAt: s.now().Add(ttl)}

	return nil
}

// Get returns the payload stored under key.
func (s *SessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, store.ErrSessionNotFound
	}

	return append([]byte(nil), entry.payload...), nil
}

// Delete removes a key.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}
