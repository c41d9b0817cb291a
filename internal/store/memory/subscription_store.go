package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
)

// SubscriptionStore implements store.PlanStore and store.SubscriptionStore using in-memory storage.
// A single lock covers plans and ledger entries so the deletion guard and the
// one-entry-per-customer rule hold under concurrent callers.
// This implementation is for testing only - data is lost on restart.
type SubscriptionStore struct {
	mu sync.RWMutex

	nextPlanID    int64
	plans         map[int64]*models.Plan         // plan_id -> Plan
	planOrder     []int64                        // insertion order
	subscriptions map[int64]*models.Subscription // customer_id -> Subscription
}

var (
	_ store.PlanStore         = (*SubscriptionStore)(nil)
	_ store.SubscriptionStore = (*SubscriptionStore)(nil)
)

// NewSubscriptionStore creates a new in-memory plan and subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		plans:         make(map[int64]*models.Plan),
		subscriptions: make(map[int64]*models.Subscription),
	}
}

// CreatePlan stores a new plan.
func (s *SubscriptionStore) CreatePlan(ctx context.Context, plan *models.Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(plan.Name, 0) {
		return store.ErrPlanNameTaken
	}

	s.nextPlanID++
	now := time.Now()
	plan.PlanID = s.nextPlanID
	plan.CreatedAt = now
	plan.UpdatedAt = now

	// Clone to avoid external modifications
	clone := *plan
	s.plans[plan.PlanID] = &clone
	s.planOrder = append(s.planOrder, plan.PlanID)

	return nil
}

// GetPlan retrieves a plan by ID.
func (s *SubscriptionStore) GetPlan(ctx context.Context, planID int64) (*models.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, exists := s.plans[planID]
	if !exists {
		return nil, store.ErrPlanNotFound
	}

	clone := *plan
	return &clone, nil
}

// UpdatePlan applies a partial update to a plan.
func (s *SubscriptionStore) UpdatePlan(ctx context.Context, planID int64, patch *models.PlanPatch) (*models.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plan, exists := s.plans[planID]
	if !exists {
		return nil, store.ErrPlanNotFound
	}

	if patch.Name != nil && s.nameTaken(*patch.Name, planID) {
		return nil, store.ErrPlanNameTaken
	}

	patch.Apply(plan)
	plan.UpdatedAt = time.Now()

	clone := *plan
	return &clone, nil
}

// DeletePlan removes a plan when it has no active subscribers.
func (s *SubscriptionStore) DeletePlan(ctx context.Context, planID int64, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[planID]; !exists {
		return store.ErrPlanNotFound
	}

	if count := s.countActive(planID, now); count > 0 {
		return &store.PlanInUseError{PlanID: planID, ActiveSubscribers: count}
	}

	// Expired entries would otherwise dangle
	for customerID, sub := range s.subscriptions {
		if sub.PlanID == planID {
			delete(s.subscriptions, customerID)
		}
	}

	delete(s.plans, planID)
	for i, id := range s.planOrder {
		if id == planID {
			s.planOrder = append(s.planOrder[:i], s.planOrder[i+1:]...)
			break
		}
	}

	return nil
}

// ListPlans returns all plans in insertion order.
func (s *SubscriptionStore) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]*models.Plan, 0, len(s.planOrder))
	for _, id := range s.planOrder {
		clone := *s.plans[id]
		plans = append(plans, &clone)
	}

	return plans, nil
}

// CountActiveSubscribers counts the entries referencing a plan that are active at now.
func (s *SubscriptionStore) CountActiveSubscribers(ctx context.Context, planID int64, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countActive(planID, now), nil
}

// Subscribe records a ledger entry for a customer.
func (s *SubscriptionStore) Subscribe(ctx context.Context, sub *models.Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[sub.PlanID]; !exists {
		return store.ErrPlanNotFound
	}

	if existing, exists := s.subscriptions[sub.CustomerID]; exists && existing.IsActive(sub.SubscribedAt) {
		return store.ErrAlreadySubscribed
	}

	clone := *sub
	s.subscriptions[sub.CustomerID] = &clone

	return nil
}

// Unsubscribe removes the customer's active entry.
func (s *SubscriptionStore) Unsubscribe(ctx context.Context, customerID int64, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, exists := s.subscriptions[customerID]
	if !exists || !sub.IsActive(now) {
		return store.ErrNotSubscribed
	}

	delete(s.subscriptions, customerID)

	return nil
}

// GetActive returns the customer's active entry.
func (s *SubscriptionStore) GetActive(ctx context.Context, customerID int64, now time.Time) (*models.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.subscriptions[customerID]
	if !exists || !sub.IsActive(now) {
		return nil, store.ErrNotSubscribed
	}

	clone := *sub
	return &clone, nil
}

// countActive must be called with the lock held.
func (s *SubscriptionStore) countActive(planID int64, now time.Time) int {
	count := 0
	for _, sub := range s.subscriptions {
		if sub.PlanID == planID && sub.IsActive(now) {
			count++
		}
	}
	return count
}

// nameTaken must be called with the lock held.
func (s *SubscriptionStore) nameTaken(name string, exceptID int64) bool {
	for id, plan := range s.plans {
		if id != exceptID && plan.Name == name {
			return true
		}
	}
	return false
}
