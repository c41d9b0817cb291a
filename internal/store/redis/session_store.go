package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bookstore/internal/store"
)

// SessionStore implements store.SessionStore on Redis.
// Expiry uses native key TTLs, so a key past its TTL is simply gone.
type SessionStore struct {
	client goredis.UniversalClient
}

var _ store.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a Redis-backed session store.
func NewSessionStore(client goredis.UniversalClient) *SessionStore {
	return &SessionStore{client: client}
}

// Set writes the payload with SET key value EX ttl, replacing any previous value and TTL.
func (s *SessionStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", ttl)
	}

	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", mapRedisError(err))
	}

	return nil
}

// Replace writes the payload with SET key value EX ttl XX.
func (s *SessionStore) Replace(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", ttl)
	}

	replaced, err := s.client.SetXX(ctx, key, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to replace session: %w", mapRedisError(err))
	}
	if !replaced {
		return store.ErrSessionNotFound
	}

	return nil
}

// Get returns the payload stored under key.
func (s *SessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapRedisError(err))
	}

	return payload, nil
}

// Delete removes key. DEL on a missing key reports zero removed, which is not an error.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	removed, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", mapRedisError(err))
	}

	log.Debug().
		Int64("removed", removed).
		Msg("Deleted session")

	return nil
}

// mapRedisError wraps client-side failures (network, timeout, cancellation,
// pool exhaustion) with store.ErrUnavailable.
func mapRedisError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, goredis.ErrClosed),
		errors.Is(err, goredis.ErrPoolTimeout),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	default:
		return err
	}
}
