package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/bookstore/internal/store"
)

// UsageStore implements store.UsageStore using PostgreSQL.
type UsageStore struct {
	pool *pgxpool.Pool
}

var _ store.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates a new PostgreSQL-backed usage store.
func NewUsageStore(pool *pgxpool.Pool) *UsageStore {
	return &UsageStore{
		pool: pool,
	}
}

// Record stores one book usage.
func (s *UsageStore) Record(ctx context.Context, customerID, bookID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscription_usage (customer_id, book_id, used_at) VALUES ($1, $2, $3)
	`, customerID, bookID, at)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", mapPostgresError(err))
	}
	return nil
}

// CountSince counts the customer's usages at or after since.
func (s *UsageStore) CountSince(ctx context.Context, customerID int64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM subscription_usage
		WHERE customer_id = $1 AND used_at >= $2
	`, customerID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", mapPostgresError(err))
	}
	return count, nil
}
