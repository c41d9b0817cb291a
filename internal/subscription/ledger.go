package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
	"github.com/wolfeidau/bookstore/internal/telemetry"
)

// DefaultBillingPeriod is the lifetime of a ledger entry when none is configured.
const DefaultBillingPeriod = 30 * 24 * time.Hour

// LedgerConfig configures a Ledger.
type LedgerConfig struct {
	// BillingPeriod is added to subscribedAt to compute expiresAt.
	BillingPeriod time.Duration

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Ledger owns the per-customer subscribe and unsubscribe transitions.
// The one-active-entry invariant is enforced by the SubscriptionStore, so a
// Ledger can be shared by concurrent requests and by multiple service instances.
type Ledger struct {
	plans         store.PlanStore
	subscriptions store.SubscriptionStore
	usage         store.UsageStore
	billingPeriod time.Duration
	now           func() time.Time
	metrics       *telemetry.Metrics
}

// NewLedger creates a Ledger.
func NewLedger(plans store.PlanStore, subscriptions store.SubscriptionStore, usage store.UsageStore, cfg LedgerConfig) (*Ledger, error) {
	if cfg.BillingPeriod < 0 {
		return nil, fmt.Errorf("billing period must not be negative: %s", cfg.BillingPeriod)
	}
	if cfg.BillingPeriod == 0 {
		cfg.BillingPeriod = DefaultBillingPeriod
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Ledger{
		plans:         plans,
		subscriptions: subscriptions,
		usage:         usage,
		billingPeriod: cfg.BillingPeriod,
		now:           cfg.Now,
		metrics:       telemetry.GetMetrics(),
	}, nil
}

// Subscribe creates an active ledger entry for the customer.
// Returns *NotFoundError for an unknown plan and *ConflictError when the
// customer already holds an active entry, including when a concurrent
// Subscribe for the same customer won the race.
func (l *Ledger) Subscribe(ctx context.Context, customerID, planID int64) (*models.Subscription, error) {
	now := l.now().UTC()

	sub := &models.Subscription{
		CustomerID:   customerID,
		PlanID:       planID,
		SubscribedAt: now,
		ExpiresAt:    now.Add(l.billingPeriod),
	}

	if err := l.subscriptions.Subscribe(ctx, sub); err != nil {
		switch {
		case errors.Is(err, store.ErrPlanNotFound):
			return nil, &NotFoundError{Resource: "Subscription plan", ID: planID}
		case errors.Is(err, store.ErrUserNotFound):
			return nil, &NotFoundError{Resource: "Customer", ID: customerID}
		case errors.Is(err, store.ErrAlreadySubscribed):
			l.metrics.SubscriptionConflictsTotal.Add(ctx, 1)
			return nil, &ConflictError{Message: MsgAlreadySubscribed}
		default:
			return nil, wrapStoreError("subscribe", err)
		}
	}

	l.metrics.SubscriptionsCreatedTotal.Add(ctx, 1)

	log.Info().
		Int64("customer_id", customerID).
		Int64("plan_id", planID).
		Time("expires_at", sub.ExpiresAt).
		Msg("Customer subscribed")

	return sub, nil
}

// Unsubscribe removes the customer's active entry.
// Returns *ConflictError when there is none, every time it is called.
func (l *Ledger) Unsubscribe(ctx context.Context, customerID int64) error {
	if err := l.subscriptions.Unsubscribe(ctx, customerID, l.now()); err != nil {
		if errors.Is(err, store.ErrNotSubscribed) {
			l.metrics.SubscriptionConflictsTotal.Add(ctx, 1)
			return &ConflictError{Message: MsgNotSubscribed}
		}
		return wrapStoreError("unsubscribe", err)
	}

	l.metrics.SubscriptionsRemovedTotal.Add(ctx, 1)

	log.Info().Int64("customer_id", customerID).Msg("Customer unsubscribed")

	return nil
}

// Current returns the customer's active entry, or *NotFoundError when unsubscribed.
func (l *Ledger) Current(ctx context.Context, customerID int64) (*models.Subscription, error) {
	sub, err := l.subscriptions.GetActive(ctx, customerID, l.now())
	if err != nil {
		if errors.Is(err, store.ErrNotSubscribed) {
			return nil, &NotFoundError{Resource: "Subscription for customer", ID: customerID}
		}
		return nil, wrapStoreError("get subscription", err)
	}
	return sub, nil
}

// CreditsFor returns the customer's allowance for the current billing period.
// A customer without an active entry has a zero allowance.
func (l *Ledger) CreditsFor(ctx context.Context, customerID int64) (models.Credits, error) {
	credits, _, err := l.credits(ctx, customerID)
	return credits, err
}

// UseCredit records one book against the customer's allowance.
// Returns *ConflictError when the customer is unsubscribed or has no credits left.
func (l *Ledger) UseCredit(ctx context.Context, customerID, bookID int64) (models.Credits, error) {
	credits, subscribed, err := l.credits(ctx, customerID)
	if err != nil {
		return models.Credits{}, err
	}

	if !subscribed {
		return credits, &ConflictError{Message: MsgNotSubscribed}
	}

	if credits.Remaining() <= 0 {
		return credits, &ConflictError{Message: MsgNoCreditsLeft}
	}

	if err := l.usage.Record(ctx, customerID, bookID, l.now()); err != nil {
		return models.Credits{}, wrapStoreError("record usage", err)
	}

	credits.Used++

	log.Debug().
		Int64("customer_id", customerID).
		Int64("book_id", bookID).
		Int("used", credits.Used).
		Int("limit", credits.Limit).
		Msg("Book credit used")

	return credits, nil
}

func (l *Ledger) credits(ctx context.Context, customerID int64) (models.Credits, bool, error) {
	sub, err := l.subscriptions.GetActive(ctx, customerID, l.now())
	if err != nil {
		if errors.Is(err, store.ErrNotSubscribed) {
			return models.Credits{}, false, nil
		}
		return models.Credits{}, false, wrapStoreError("get subscription", err)
	}

	plan, err := l.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		// The entry blocks plan deletion, so a missing plan is a store fault
		return models.Credits{}, false, wrapStoreError("get plan", err)
	}

	used, err := l.usage.CountSince(ctx, customerID, sub.SubscribedAt)
	if err != nil {
		return models.Credits{}, false, wrapStoreError("count usage", err)
	}

	return models.Credits{Limit: plan.BooksPerMonth, Used: used}, true, nil
}
