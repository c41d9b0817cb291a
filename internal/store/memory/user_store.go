package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type UserStore struct {
	mu sync.RWMutex

	nextID  int64
	users   map[int64]*models.User // user_id -> User
	byEmail map[string]int64       // lower(email) -> user_id
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[int64]*models.User),
		byEmail: make(map[string]int64),
	}
}

// Create stores a new user.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return store.ErrUserAlreadyExists
	}

	s.nextID++
	now := time.Now()
	user.UserID = s.nextID
	user.CreatedAt = now
	user.UpdatedAt = now

	clone := *user
	s.users[user.UserID] = &clone
	s.byEmail[email] = user.UserID

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID int64) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[userID]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// GetByEmail retrieves a user by email address, ignoring case.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, exists := s.byEmail[strings.ToLower(email)]
	if !exists {
		return nil, store.ErrUserNotFound
	}

	clone := *s.users[userID]
	return &clone, nil
}

// SetRole changes a user's role. Existing sessions keep the old role until refreshed.
func (s *UserStore) SetRole(ctx context.Context, userID int64, role models.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[userID]
	if !exists {
		return store.ErrUserNotFound
	}

	user.Role = role
	user.UpdatedAt = time.Now()
	return nil
}
