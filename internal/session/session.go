// Package session maps opaque session ids to identity snapshots held in a
// shared key/value store.
//
// Keys are namespaced as "<app>:session:<id>" so several applications can share
// one store. Expiry is delegated to the store's native key TTL. A stored payload
// is a copy of the identity at create or refresh time; later edits to the user
// row are not visible until Refresh is called.
//
// Refresh only overwrites a key that still exists, so a refresh racing a
// logout cannot bring the deleted session back. Two concurrent refreshes of
// the same live session are last-write-wins.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
	"github.com/wolfeidau/bookstore/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	keySegment   = "session"
	keySeparator = ":"
)

// Config configures the session service.
type Config struct {
	// Namespace prefixes every key, normally the application name.
	Namespace string

	// TTL is the lifetime of a session after create or refresh.
	TTL time.Duration
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("session namespace is required")
	}
	if strings.Contains(c.Namespace, keySeparator) {
		return fmt.Errorf("session namespace %q must not contain %q", c.Namespace, keySeparator)
	}
	if c.TTL < time.Second {
		return fmt.Errorf("session ttl must be at least one second, got %s", c.TTL)
	}
	return nil
}

// Service owns all reads and writes of session records.
type Service struct {
	backend store.SessionStore
	cfg     Config
	newID   func() string
	metrics *telemetry.Metrics
}

// NewService creates a session service over the given key/value backend.
func NewService(backend store.SessionStore, cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		backend: backend,
		cfg:     cfg,
		newID:   func() string { return uuid.NewString() },
		metrics: telemetry.GetMetrics(),
	}, nil
}

// TTL returns the configured session lifetime.
func (s *Service) TTL() time.Duration {
	return s.cfg.TTL
}

// Key returns the namespaced store key of a session id.
func (s *Service) Key(sessionID string) string {
	return strings.Join([]string{s.cfg.Namespace, keySegment, sessionID}, keySeparator)
}

// Create stores identity under a fresh session id and returns the id joined with the identity.
func (s *Service) Create(ctx context.Context, identity models.Identity) (*models.Session, error) {
	sessionID := s.newID()

	if err := s.write(ctx, sessionID, identity); err != nil {
		return nil, err
	}

	s.record(ctx, "create")

	log.Debug().
		Str("session_id", sessionID).
		Int64("user_id", identity.UserID).
		Msg("Created session")

	return &models.Session{SessionID: sessionID, Identity: identity}, nil
}

// Get returns the identity stored for a session id. The boolean is false when
// the session is missing, expired or holds a payload that does not decode to an
// identity; none of these are errors. Errors are reserved for store failures.
func (s *Service) Get(ctx context.Context, sessionID string) (*models.Identity, bool, error) {
	if !validID(sessionID) {
		return nil, false, nil
	}

	payload, err := s.backend.Get(ctx, s.Key(sessionID))
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	identity, ok := decodeIdentity(payload)
	if !ok {
		log.Warn().
			Str("session_id", sessionID).
			Msg("Discarding undecodable session payload")
		s.record(ctx, "corrupt")
		return nil, false, nil
	}

	return identity, true, nil
}

// Refresh replaces the stored identity and resets the TTL with one store write.
// The session id is unchanged. Returns store.ErrSessionNotFound when the
// session was deleted or expired in the meantime.
func (s *Service) Refresh(ctx context.Context, sessionID string, identity models.Identity) error {
	if !validID(sessionID) {
		return fmt.Errorf("invalid session id")
	}

	payload, err := encodeIdentity(identity)
	if err != nil {
		return err
	}

	if err := s.backend.Replace(ctx, s.Key(sessionID), payload, s.cfg.TTL); err != nil {
		return err
	}

	s.record(ctx, "refresh")
	return nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	if !validID(sessionID) {
		return nil
	}

	if err := s.backend.Delete(ctx, s.Key(sessionID)); err != nil {
		return err
	}

	s.record(ctx, "delete")
	return nil
}

func (s *Service) write(ctx context.Context, sessionID string, identity models.Identity) error {
	payload, err := encodeIdentity(identity)
	if err != nil {
		return err
	}

	return s.backend.Set(ctx, s.Key(sessionID), payload, s.cfg.TTL)
}

func encodeIdentity(identity models.Identity) ([]byte, error) {
	payload, err := json.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return payload, nil
}

func (s *Service) record(ctx context.Context, op string) {
	s.metrics.SessionOperationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// decodeIdentity strictly decodes a stored payload. Anything that is not a JSON
// object with a known role and a user id is rejected.
func decodeIdentity(payload []byte) (*models.Identity, bool) {
	var identity models.Identity

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&identity); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}

	if identity.UserID <= 0 || !identity.Role.Valid() {
		return nil, false
	}

	return &identity, true
}

// validID rejects ids that could address a key outside the session namespace.
func validID(sessionID string) bool {
	return sessionID != "" && !strings.Contains(sessionID, keySeparator) && len(sessionID) <= 128
}
