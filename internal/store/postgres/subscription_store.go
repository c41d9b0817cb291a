package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
)

// SubscriptionStore implements store.SubscriptionStore using PostgreSQL.
// The user_subscription_customer_key unique constraint is the sole arbiter of
// the one-active-entry-per-customer invariant.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

var _ store.SubscriptionStore = (*SubscriptionStore)(nil)

// NewSubscriptionStore creates a new PostgreSQL-backed subscription ledger.
func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{
		pool: pool,
	}
}

// Subscribe inserts a ledger entry in a single transaction:
//  1. lock the plan row FOR SHARE so a concurrent DeletePlan cannot remove it
//  2. purge the customer's expired entry, if any
//  3. insert; a unique violation means another entry is active
func (s *SubscriptionStore) Subscribe(ctx context.Context, sub *models.Subscription) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	var planID int64
	err = tx.QueryRow(ctx, `SELECT plan_id FROM subscription_plans WHERE plan_id = $1 FOR SHARE`, sub.PlanID).Scan(&planID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrPlanNotFound
		}
		return fmt.Errorf("failed to lock plan: %w", mapPostgresError(err))
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM user_subscription
		WHERE customer_id = $1 AND expires_at <= $2
	`, sub.CustomerID, sub.SubscribedAt)
	if err != nil {
		return fmt.Errorf("failed to purge expired subscription: %w", mapPostgresError(err))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_subscription (
			customer_id, plan_id, subscribed_at, expires_at
		) VALUES (
			$1, $2, $3, $4
		)
	`, sub.CustomerID, sub.PlanID, sub.SubscribedAt, sub.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err, "user_subscription_customer_key") {
			return store.ErrAlreadySubscribed
		}
		if isForeignKeyViolation(err, "user_subscription_customer_fkey") {
			return store.ErrUserNotFound
		}
		return fmt.Errorf("failed to insert subscription: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		// The losing writer can also surface the violation at commit
		if isUniqueViolation(err, "user_subscription_customer_key") {
			return store.ErrAlreadySubscribed
		}
		return fmt.Errorf("failed to commit subscription: %w", mapPostgresError(err))
	}

	log.Debug().
		Int64("customer_id", sub.CustomerID).
		Int64("plan_id", sub.PlanID).
		Time("expires_at", sub.ExpiresAt).
		Msg("Created subscription")

	return nil
}

// Unsubscribe deletes the customer's active entry with a single statement.
func (s *SubscriptionStore) Unsubscribe(ctx context.Context, customerID int64, now time.Time) error {
	query := `DELETE FROM user_subscription WHERE customer_id = $1 AND expires_at > $2`

	result, err := s.pool.Exec(ctx, query, customerID, now)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrNotSubscribed
	}

	log.Debug().
		Int64("customer_id", customerID).
		Msg("Deleted subscription")

	return nil
}

// GetActive returns the customer's active entry.
func (s *SubscriptionStore) GetActive(ctx context.Context, customerID int64, now time.Time) (*models.Subscription, error) {
	query := `
		SELECT customer_id, plan_id, subscribed_at, expires_at
		FROM user_subscription
		WHERE customer_id = $1 AND expires_at > $2
	`

	var sub models.Subscription
	err := s.pool.QueryRow(ctx, query, customerID, now).Scan(
		&sub.CustomerID,
		&sub.PlanID,
		&sub.SubscribedAt,
		&sub.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotSubscribed
		}
		return nil, fmt.Errorf("failed to get subscription: %w", mapPostgresError(err))
	}

	return &sub, nil
}
