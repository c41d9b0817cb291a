package subscription

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
	"github.com/wolfeidau/bookstore/internal/telemetry"
)

const (
	maxPlanNameLength = 100
	maxBooksPerMonth  = math.MaxInt32
)

// maxPricePerMonth is the largest value a NUMERIC(12,2) column holds.
var maxPricePerMonth = decimal.RequireFromString("9999999999.99")

// PlanInput is the payload for creating a plan.
type PlanInput struct {
	Name          string          `json:"name" yaml:"name"`
	BooksPerMonth int             `json:"booksPerMonth" yaml:"booksPerMonth"`
	PricePerMonth decimal.Decimal `json:"pricePerMonth" yaml:"pricePerMonth"`
}

// Catalog manages subscription plan definitions.
type Catalog struct {
	plans   store.PlanStore
	now     func() time.Time
	metrics *telemetry.Metrics
}

// NewCatalog creates a plan catalog over the given store.
func NewCatalog(plans store.PlanStore) *Catalog {
	return &Catalog{
		plans:   plans,
		now:     time.Now,
		metrics: telemetry.GetMetrics(),
	}
}

// List returns all plans in creation order.
func (c *Catalog) List(ctx context.Context) ([]*models.Plan, error) {
	plans, err := c.plans.ListPlans(ctx)
	if err != nil {
		return nil, wrapStoreError("list plans", err)
	}
	return plans, nil
}

// Get returns a plan by ID.
func (c *Catalog) Get(ctx context.Context, planID int64) (*models.Plan, error) {
	plan, err := c.plans.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil, &NotFoundError{Resource: "Subscription plan", ID: planID}
		}
		return nil, wrapStoreError("get plan", err)
	}
	return plan, nil
}

// Create validates and stores a new plan.
func (c *Catalog) Create(ctx context.Context, input PlanInput) (*models.Plan, error) {
	name := strings.TrimSpace(input.Name)

	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateBooks(input.BooksPerMonth); err != nil {
		return nil, err
	}
	if err := validatePrice(input.PricePerMonth); err != nil {
		return nil, err
	}

	plan := &models.Plan{
		Name:          name,
		BooksPerMonth: input.BooksPerMonth,
		PricePerMonth: input.PricePerMonth,
	}

	if err := c.plans.CreatePlan(ctx, plan); err != nil {
		if errors.Is(err, store.ErrPlanNameTaken) {
			return nil, duplicateName(name)
		}
		return nil, wrapStoreError("create plan", err)
	}

	log.Info().
		Int64("plan_id", plan.PlanID).
		Str("name", plan.Name).
		Msg("Subscription plan created")

	return plan, nil
}

// Edit applies a partial update to a plan.
func (c *Catalog) Edit(ctx context.Context, planID int64, patch *models.PlanPatch) (*models.Plan, error) {
	if patch == nil || patch.IsEmpty() {
		return c.Get(ctx, planID)
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		patch.Name = &name
	}
	if patch.BooksPerMonth != nil {
		if err := validateBooks(*patch.BooksPerMonth); err != nil {
			return nil, err
		}
	}
	if patch.PricePerMonth != nil {
		if err := validatePrice(*patch.PricePerMonth); err != nil {
			return nil, err
		}
	}

	plan, err := c.plans.UpdatePlan(ctx, planID, patch)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPlanNotFound):
			return nil, &NotFoundError{Resource: "Subscription plan", ID: planID}
		case errors.Is(err, store.ErrPlanNameTaken):
			return nil, duplicateName(*patch.Name)
		default:
			return nil, wrapStoreError("edit plan", err)
		}
	}

	return plan, nil
}

// Delete removes a plan unless customers hold active subscriptions to it, in
// which case a *ConflictError carrying the subscriber count is returned. The
// count and delete are performed atomically by the store.
func (c *Catalog) Delete(ctx context.Context, planID int64) error {
	now := c.now()

	err := c.plans.DeletePlan(ctx, planID, now)
	if err == nil {
		log.Info().Int64("plan_id", planID).Msg("Subscription plan deleted")
		return nil
	}

	var inUse *store.PlanInUseError
	switch {
	case errors.As(err, &inUse):
		c.metrics.PlanDeletesRejectedTotal.Add(ctx, 1)
		return &ConflictError{
			Message:           PlanInUseMessage(inUse.ActiveSubscribers),
			ActiveSubscribers: inUse.ActiveSubscribers,
		}
	case errors.Is(err, store.ErrPlanInUse):
		// Rejected by the storage constraint rather than the guard; report a fresh count
		count, countErr := c.plans.CountActiveSubscribers(ctx, planID, now)
		if countErr != nil {
			return wrapStoreError("count subscribers", countErr)
		}
		c.metrics.PlanDeletesRejectedTotal.Add(ctx, 1)
		return &ConflictError{Message: PlanInUseMessage(count), ActiveSubscribers: count}
	case errors.Is(err, store.ErrPlanNotFound):
		return &NotFoundError{Resource: "Subscription plan", ID: planID}
	default:
		return wrapStoreError("delete plan", err)
	}
}

func validateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "Plan name is required."}
	}
	if len(name) > maxPlanNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("Plan name must be at most %d characters.", maxPlanNameLength)}
	}
	return nil
}

func validateBooks(books int) error {
	if books < 0 {
		return &ValidationError{Field: "booksPerMonth", Message: "Books per month must not be negative."}
	}
	if books > maxBooksPerMonth {
		return &ValidationError{Field: "booksPerMonth", Message: fmt.Sprintf("Books per month must be at most %d.", maxBooksPerMonth)}
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return &ValidationError{Field: "pricePerMonth", Message: "Price per month must not be negative."}
	}
	if price.GreaterThan(maxPricePerMonth) {
		return &ValidationError{Field: "pricePerMonth", Message: fmt.Sprintf("Price per month must be at most %s.", maxPricePerMonth.StringFixed(2))}
	}
	if price.Exponent() < -2 && !price.Equal(price.Round(2)) {
		return &ValidationError{Field: "pricePerMonth", Message: "Price per month must have at most two decimal places."}
	}
	return nil
}

func duplicateName(name string) error {
	return &ValidationError{
		Field:   "name",
		Message: fmt.Sprintf("Subscription plan with name %s already exists.", name),
		Err:     store.ErrPlanNameTaken,
	}
}
