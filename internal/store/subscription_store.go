package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/bookstore/internal/models"
)

// Sentinel errors for plan and subscription store operations
var (
	ErrPlanNotFound      = errors.New("subscription plan not found")
	ErrPlanNameTaken     = errors.New("subscription plan name already exists")
	ErrPlanInUse         = errors.New("subscription plan has active subscribers")
	ErrAlreadySubscribed = errors.New("customer already subscribed")
	ErrNotSubscribed     = errors.New("customer not subscribed")
)

// PlanInUseError is returned when a plan delete is rejected by the deletion guard.
// It matches ErrPlanInUse with errors.Is.
type PlanInUseError struct {
	PlanID            int64
	ActiveSubscribers int
}

func (e *PlanInUseError) Error() string {
	return fmt.Sprintf("subscription plan %d has %d active subscribers", e.PlanID, e.ActiveSubscribers)
}

func (e *PlanInUseError) Is(target error) bool {
	return target == ErrPlanInUse
}

// PlanStore defines the interface for subscription plan storage operations.
type PlanStore interface {
	// CreatePlan inserts a plan and assigns its PlanID and timestamps.
	// Returns ErrPlanNameTaken if a plan with the same name exists.
	CreatePlan(ctx context.Context, plan *models.Plan) error

	// GetPlan retrieves a plan by ID.
	// Returns ErrPlanNotFound if the plan doesn't exist.
	GetPlan(ctx context.Context, planID int64) (*models.Plan, error)

	// UpdatePlan applies a partial update and returns the stored plan.
	// Returns ErrPlanNotFound or ErrPlanNameTaken.
	UpdatePlan(ctx context.Context, planID int64, patch *models.PlanPatch) (*models.Plan, error)

	// DeletePlan removes a plan if no subscription referencing it is active at now.
	// The count and the delete happen as one atomic unit with respect to Subscribe.
	// Returns ErrPlanNotFound, or a *PlanInUseError carrying the active subscriber count.
	DeletePlan(ctx context.Context, planID int64, now time.Time) error

	// ListPlans returns all plans in insertion order.
	ListPlans(ctx context.Context) ([]*models.Plan, error)

	// CountActiveSubscribers returns the number of entries referencing the plan that are active at now.
	CountActiveSubscribers(ctx context.Context, planID int64, now time.Time) (int, error)
}

// SubscriptionStore defines the interface for the subscription ledger.
// At most one active entry may exist per customer; implementations enforce this
// in storage rather than relying on callers.
type SubscriptionStore interface {
	// Subscribe records a new ledger entry. Entries of the same customer that expired
	// before sub.SubscribedAt are purged first.
	// Returns ErrPlanNotFound if the plan doesn't exist and ErrAlreadySubscribed if
	// the customer holds an active entry (including when a concurrent Subscribe won).
	// Backends that track users return ErrUserNotFound for an unknown customer.
	Subscribe(ctx context.Context, sub *models.Subscription) error

	// Unsubscribe removes the customer's active entry.
	// Returns ErrNotSubscribed if there is no entry active at now.
	Unsubscribe(ctx context.Context, customerID int64, now time.Time) error

	// GetActive returns the customer's entry active at now.
	// Returns ErrNotSubscribed if there is none.
	GetActive(ctx context.Context, customerID int64, now time.Time) (*models.Subscription, error)
}
