package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/bookstore/internal/models"
)

// Sentinel errors for user store operations
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserStore defines the interface for user account lookups.
type UserStore interface {
	// Create inserts a user and assigns its UserID.
	// Returns ErrUserAlreadyExists if the email is already registered.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves a user by ID.
	// Returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, userID int64) (*models.User, error)

	// GetByEmail retrieves a user by email address.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
