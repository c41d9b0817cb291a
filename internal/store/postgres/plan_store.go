package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
)

const planNameConstraint = "subscription_plans_name_key"

// PlanStore implements store.PlanStore using PostgreSQL.
type PlanStore struct {
	pool *pgxpool.Pool
}

var _ store.PlanStore = (*PlanStore)(nil)

// NewPlanStore creates a new PostgreSQL-backed plan store.
// It shares the connection pool with other stores.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{
		pool: pool,
	}
}

// CreatePlan inserts a new plan.
func (s *PlanStore) CreatePlan(ctx context.Context, plan *models.Plan) error {
	query := `
		INSERT INTO subscription_plans (
			name, books_per_month, price_per_month
		) VALUES (
			$1, $2, $3::numeric
		)
		RETURNING plan_id, created_at, updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		plan.Name,
		plan.BooksPerMonth,
		plan.PricePerMonth.String(),
	).Scan(&plan.PlanID, &plan.CreatedAt, &plan.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err, planNameConstraint) {
			return store.ErrPlanNameTaken
		}
		return fmt.Errorf("failed to create plan: %w", mapPostgresError(err))
	}

	log.Debug().
		Int64("plan_id", plan.PlanID).
		Str("name", plan.Name).
		Msg("Created subscription plan")

	return nil
}

// GetPlan retrieves a plan by ID.
func (s *PlanStore) GetPlan(ctx context.Context, planID int64) (*models.Plan, error) {
	query := `
		SELECT plan_id, name, books_per_month, price_per_month::text, created_at, updated_at
		FROM subscription_plans
		WHERE plan_id = $1
	`

	plan, err := scanPlan(s.pool.QueryRow(ctx, query, planID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", mapPostgresError(err))
	}

	return plan, nil
}

// UpdatePlan applies a partial update; NULL parameters keep the current column value.
func (s *PlanStore) UpdatePlan(ctx context.Context, planID int64, patch *models.PlanPatch) (*models.Plan, error) {
	query := `
		UPDATE subscription_plans SET
			name = COALESCE($2, name),
			books_per_month = COALESCE($3, books_per_month),
			price_per_month = COALESCE($4::numeric, price_per_month),
			updated_at = $5
		WHERE plan_id = $1
		RETURNING plan_id, name, books_per_month, price_per_month::text, created_at, updated_at
	`

	var price *string
	if patch.PricePerMonth != nil {
		p := patch.PricePerMonth.String()
		price = &p
	}

	plan, err := scanPlan(s.pool.QueryRow(ctx, query,
		planID,
		patch.Name,
		patch.BooksPerMonth,
		price,
		time.Now(),
	))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPlanNotFound
		}
		if isUniqueViolation(err, planNameConstraint) {
			return nil, store.ErrPlanNameTaken
		}
		return nil, fmt.Errorf("failed to update plan: %w", mapPostgresError(err))
	}

	log.Debug().
		Int64("plan_id", planID).
		Msg("Updated subscription plan")

	return plan, nil
}

// DeletePlan removes a plan when it has no active subscribers.
//
// The plan row is locked FOR UPDATE before counting. Subscribe takes FOR SHARE on
// the same row, so a concurrent subscribe either commits before the count (and is
// counted) or waits until the delete finishes (and then sees no plan).
func (s *PlanStore) DeletePlan(ctx context.Context, planID int64, now time.Time) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	var locked int64
	err = tx.QueryRow(ctx, `SELECT plan_id FROM subscription_plans WHERE plan_id = $1 FOR UPDATE`, planID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrPlanNotFound
		}
		return fmt.Errorf("failed to lock plan: %w", mapPostgresError(err))
	}

	count, err := countActiveSubscribers(ctx, tx, planID, now)
	if err != nil {
		return err
	}

	if count > 0 {
		return &store.PlanInUseError{PlanID: planID, ActiveSubscribers: count}
	}

	// Expired entries still reference the plan through the foreign key
	if _, err = tx.Exec(ctx, `DELETE FROM user_subscription WHERE plan_id = $1 AND expires_at <= $2`, planID, now); err != nil {
		return fmt.Errorf("failed to purge expired subscriptions: %w", mapPostgresError(err))
	}

	if _, err = tx.Exec(ctx, `DELETE FROM subscription_plans WHERE plan_id = $1`, planID); err != nil {
		if isForeignKeyViolation(err, "user_subscription_plan_fkey") {
			return fmt.Errorf("%w: %s", store.ErrPlanInUse, err)
		}
		return fmt.Errorf("failed to delete plan: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit plan delete: %w", mapPostgresError(err))
	}

	log.Info().
		Int64("plan_id", planID).
		Msg("Deleted subscription plan")

	return nil
}

// ListPlans returns all plans ordered by insertion.
func (s *PlanStore) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	query := `
		SELECT plan_id, name, books_per_month, price_per_month::text, created_at, updated_at
		FROM subscription_plans
		ORDER BY plan_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", mapPostgresError(err))
	}
	defer rows.Close()

	plans := []*models.Plan{}
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", mapPostgresError(err))
	}

	return plans, nil
}

// CountActiveSubscribers counts the entries referencing a plan that are active at now.
func (s *PlanStore) CountActiveSubscribers(ctx context.Context, planID int64, now time.Time) (int, error) {
	return countActiveSubscribers(ctx, s.pool, planID, now)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// countActiveSubscribers uses the same "active" filter as the ledger queries.
func countActiveSubscribers(ctx context.Context, q querier, planID int64, now time.Time) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT count(*) FROM user_subscription
		WHERE plan_id = $1 AND expires_at > $2
	`, planID, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active subscribers: %w", mapPostgresError(err))
	}
	return count, nil
}

func scanPlan(row pgx.Row) (*models.Plan, error) {
	var (
		plan  models.Plan
		price string
	)
	err := row.Scan(
		&plan.PlanID,
		&plan.Name,
		&plan.BooksPerMonth,
		&price,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	plan.PricePerMonth, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price_per_month %q: %w", price, err)
	}

	return &plan, nil
}
