package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{
		pool: pool,
	}
}

const userColumns = `user_id, email, first_name, last_name, password_hash, role, active, created_at, updated_at`

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (
			email, first_name, last_name, password_hash, role, active
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		RETURNING user_id, created_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		user.Email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		string(user.Role),
		user.Active,
	).Scan(&user.UserID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return store.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}

	log.Debug().
		Int64("user_id", user.UserID).
		Str("role", string(user.Role)).
		Msg("Created user")

	return nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return s.getOne(ctx, query, userID)
}

// GetByEmail retrieves a user by email address, ignoring case.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return s.getOne(ctx, query, email)
}

func (s *UserStore) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var (
		user models.User
		role string
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.UserID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&role,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	user.Role = models.Role(role)
	return &user, nil
}
