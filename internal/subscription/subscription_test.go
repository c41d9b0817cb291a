package subscription

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bookstore/internal/models"
	"github.com/wolfeidau/bookstore/internal/store"
	"github.com/wolfeidau/bookstore/internal/store/memory"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	catalog *Catalog
	ledger  *Ledger
	store   *memory.SubscriptionStore
	usage   *memory.UsageStore
	now     time.Time
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.NewSubscriptionStore(),
		usage: memory.NewUsageStore(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.catalog = NewCatalog(f.store)
	f.catalog.now = clock

	ledger, err := NewLedger(f.store, f.store, f.usage, LedgerConfig{BillingPeriod: 30 * 24 * time.Hour, Now: clock})
	require.NoError(t, err)
	f.ledger = ledger

	return f
}

func planInput(name string, books int, price string) PlanInput {
	return PlanInput{Name: name, BooksPerMonth: books, PricePerMonth: decimal.RequireFromString(price)}
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	economic, err := f.catalog.Create(ctx, planInput("Economic", 5, "5"))
	require.NoError(t, err)
	premium, err := f.catalog.Create(ctx, planInput("Premium", 10, "7.5"))
	require.NoError(t, err)

	const customer = int64(42)

	_, err = f.ledger.Subscribe(ctx, customer, economic.PlanID)
	require.NoError(t, err)

	_, err = f.ledger.Subscribe(ctx, customer, premium.PlanID)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, MsgAlreadySubscribed, conflict.Message)

	err = f.catalog.Delete(ctx, economic.PlanID)
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, 1, conflict.ActiveSubscribers)
	require.Equal(t, "Cannot delete plan since there are 1 users who are subscribed to it.", conflict.Message)

	require.NoError(t, f.ledger.Unsubscribe(ctx, customer))
	require.NoError(t, f.catalog.Delete(ctx, economic.PlanID))

	plans, err := f.catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.Equal(t, "Premium", plans[0].Name)
}

func TestCatalog_Create(t *testing.T) {
	tests := []struct {
		name      string
		input     PlanInput
		wantField string
	}{
		{name: "empty name", input: planInput("  ", 5, "5"), wantField: "name"},
		{name: "negative books", input: planInput("Basic", -1, "5"), wantField: "booksPerMonth"},
		{name: "negative price", input: planInput("Basic", 1, "-0.01"), wantField: "pricePerMonth"},
		{name: "sub-cent price", input: planInput("Basic", 1, "1.005"), wantField: "pricePerMonth"},
		{name: "books above int32", input: planInput("Basic", math.MaxInt32+1, "5"), wantField: "booksPerMonth"},
		{name: "price above numeric precision", input: planInput("Basic", 1, "10000000000"), wantField: "pricePerMonth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.catalog.Create(context.Background(), tt.input)
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			require.Equal(t, tt.wantField, validation.Field)
		})
	}

	t.Run("trims name and allows free plans", func(t *testing.T) {
		f := newFixture(t)

		plan, err := f.catalog.Create(context.Background(), planInput("  Free  ", 0, "0.00"))
		require.NoError(t, err)
		require.Equal(t, "Free", plan.Name)
		require.NotZero(t, plan.PlanID)
	})

	t.Run("duplicate name", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		_, err := f.catalog.Create(ctx, planInput("Economic", 5, "5"))
		require.NoError(t, err)

		_, err = f.catalog.Create(ctx, planInput("Economic", 3, "2"))
		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
		require.Equal(t, "Subscription plan with name Economic already exists.", validation.Message)
		require.ErrorIs(t, err, store.ErrPlanNameTaken)
	})

	t.Run("upper bounds are inclusive", func(t *testing.T) {
		f := newFixture(t)

		plan, err := f.catalog.Create(context.Background(), planInput("Max", math.MaxInt32, "9999999999.99"))
		require.NoError(t, err)
		require.Equal(t, math.MaxInt32, plan.BooksPerMonth)
	})

	t.Run("malformed name is not a duplicate", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.catalog.Create(context.Background(), planInput("", 1, "1"))
		require.Error(t, err)
		require.NotErrorIs(t, err, store.ErrPlanNameTaken)
	})
}

func TestCatalog_Edit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	economic, err := f.catalog.Create(ctx, planInput("Economic", 5, "5"))
	require.NoError(t, err)
	_, err = f.catalog.Create(ctx, planInput("Premium", 10, "7.5"))
	require.NoError(t, err)

	t.Run("partial update", func(t *testing.T) {
		books := 6
		plan, err := f.catalog.Edit(ctx, economic.PlanID, &models.PlanPatch{BooksPerMonth: &books})
		require.NoError(t, err)
		require.Equal(t, 6, plan.BooksPerMonth)
		require.Equal(t, "Economic", plan.Name)
		require.True(t, decimal.RequireFromString("5").Equal(plan.PricePerMonth))
	})

	t.Run("empty patch returns current plan", func(t *testing.T) {
		plan, err := f.catalog.Edit(ctx, economic.PlanID, &models.PlanPatch{})
		require.NoError(t, err)
		require.Equal(t, economic.PlanID, plan.PlanID)
	})

	t.Run("rename to existing name", func(t *testing.T) {
		name := "Premium"
		_, err := f.catalog.Edit(ctx, economic.PlanID, &models.PlanPatch{Name: &name})
		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
	})

	t.Run("invalid price", func(t *testing.T) {
		price := decimal.RequireFromString("-1")
		_, err := f.catalog.Edit(ctx, economic.PlanID, &models.PlanPatch{PricePerMonth: &price})
		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
		require.Equal(t, "pricePerMonth", validation.Field)
	})

	t.Run("out of range values", func(t *testing.T) {
		books := math.MaxInt32 + 1
		_, err := f.catalog.Edit(ctx, economic.PlanID, &models.PlanPatch{BooksPerMonth: &books})
		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
		require.Equal(t, "booksPerMonth", validation.Field)

		price := decimal.RequireFromString("10000000000.00")
		_, err = f.catalog.Edit(ctx, economic.PlanID, &models.PlanPatch{PricePerMonth: &price})
		require.ErrorAs(t, err, &validation)
		require.Equal(t, "pricePerMonth", validation.Field)
	})

	t.Run("unknown plan", func(t *testing.T) {
		books := 1
		_, err := f.catalog.Edit(ctx, 999, &models.PlanPatch{BooksPerMonth: &books})
		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
		require.Equal(t, int64(999), notFound.ID)
	})
}

func TestCatalog_Delete(t *testing.T) {
	t.Run("counts only active subscribers", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		plan, err := f.catalog.Create(ctx, planInput("Economic", 5, "5"))
		require.NoError(t, err)

		for customer := int64(1); customer <= 3; customer++ {
			_, err := f.ledger.Subscribe(ctx, customer, plan.PlanID)
			require.NoError(t, err)
		}

		err = f.catalog.Delete(ctx, plan.PlanID)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, 3, conflict.ActiveSubscribers)
		require.Equal(t, PlanInUseMessage(3), conflict.Message)

		// Every entry lapses after one billing period
		f.advance(31 * 24 * time.Hour)
		require.NoError(t, f.catalog.Delete(ctx, plan.PlanID))
	})

	t.Run("unknown plan", func(t *testing.T) {
		f := newFixture(t)

		err := f.catalog.Delete(context.Background(), 7)
		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("constraint rejection reports fresh count", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		plan, err := f.catalog.Create(ctx, planInput("Economic", 5, "5"))
		require.NoError(t, err)
		_, err = f.ledger.Subscribe(ctx, 1, plan.PlanID)
		require.NoError(t, err)

		f.catalog.plans = &constraintPlanStore{SubscriptionStore: f.store}

		err = f.catalog.Delete(ctx, plan.PlanID)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, 1, conflict.ActiveSubscribers)
	})
}

func TestLedger_Subscribe(t *testing.T) {
	t.Run("sets one billing period", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		plan, err := f.catalog.Create(ctx, planInput("Economic", 5, "5"))
		require.NoError(t, err)

		sub, err := f.ledger.Subscribe(ctx, 1, plan.PlanID)
		require.NoError(t, err)
		require.Equal(t, f.now, sub.SubscribedAt)
		require.Equal(t, f.now.Add(30*24*time.Hour), sub.ExpiresAt)

		current, err := f.ledger.Current(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, plan.PlanID, current.PlanID)
	})

	t.Run("unknown plan", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.ledger.Subscribe(context.Background(), 1, 404)
		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
		require.Equal(t, int64(404), notFound.ID)
	})

	t.Run("unknown customer", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		plan, err := f.catalog.Create(ctx, planInput("Economic", 5, "5"))
		require.NoError(t, err)

		ledger, err := NewLedger(f.store, &deletedUserStore{f.store}, f.usage, LedgerConfig{})
		require.NoError(t, err)

		_, err = ledger.Subscribe(ctx, 77, plan.PlanID)
		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
		require.Equal(t, "Customer", notFound.Resource)
		require.Equal(t, int64(77), notFound.ID)
	})

	t.Run("expired entry does not block", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		economic, err := f.catalog.Create(ctx, planInput("Economic", 5, "5"))
		require.NoError(t, err)
		premium, err := f.catalog.Create(ctx, planInput("Premium", 10, "7.5"))
		require.NoError(t, err)

		_, err = f.ledger.Subscribe(ctx, 1, economic.PlanID)
		require.NoError(t, err)

		f.advance(30 * 24 * time.Hour)

		sub, err := f.ledger.Subscribe(ctx, 1, premium.PlanID)
		require.NoError(t, err)
		require.Equal(t, premium.PlanID, sub.PlanID)
	})

	t.Run("concurrent subscribe has one winner", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		plan, err := f.catalog.Create(ctx, planInput("Economic", 5, "5"))
		require.NoError(t, err)

		var wins, conflicts atomic.Int32
		var g errgroup.Group
		for range 16 {
			g.Go(func() error {
				_, err := f.ledger.Subscribe(ctx, 9, plan.PlanID)
				var conflict *ConflictError
				switch {
				case err == nil:
					wins.Add(1)
				case errors.As(err, &conflict):
					conflicts.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		require.Equal(t, int32(1), wins.Load())
		require.Equal(t, int32(15), conflicts.Load())
	})

	t.Run("subscribe racing delete never dangles", func(t *testing.T) {
		for i := range 20 {
			f := newFixture(t)
			ctx := context.Background()

			plan, err := f.catalog.Create(ctx, planInput(fmt.Sprintf("Plan %d", i), 5, "5"))
			require.NoError(t, err)

			var subErr, delErr error
			var g errgroup.Group
			g.Go(func() error {
				_, subErr = f.ledger.Subscribe(ctx, 1, plan.PlanID)
				return nil
			})
			g.Go(func() error {
				delErr = f.catalog.Delete(ctx, plan.PlanID)
				return nil
			})
			require.NoError(t, g.Wait())

			if subErr == nil {
				var conflict *ConflictError
				require.ErrorAs(t, delErr, &conflict)
				_, err := f.catalog.Get(ctx, plan.PlanID)
				require.NoError(t, err)
			} else {
				var notFound *NotFoundError
				require.ErrorAs(t, subErr, &notFound)
				require.NoError(t, delErr)
			}
		}
	})
}

func TestLedger_Unsubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan, err := f.catalog.Create(ctx, planInput("Economic", 5, "5"))
	require.NoError(t, err)
	_, err = f.ledger.Subscribe(ctx, 1, plan.PlanID)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Unsubscribe(ctx, 1))

	for range 2 {
		err := f.ledger.Unsubscribe(ctx, 1)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		require.Equal(t, "You are not subscribed to a plan.", conflict.Message)
	}

	_, err = f.ledger.Current(ctx, 1)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	// Free to subscribe again
	_, err = f.ledger.Subscribe(ctx, 1, plan.PlanID)
	require.NoError(t, err)
}

func TestLedger_Credits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plan, err := f.catalog.Create(ctx, planInput("Tiny", 2, "1"))
	require.NoError(t, err)

	credits, err := f.ledger.CreditsFor(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.Credits{}, credits)

	_, err = f.ledger.UseCredit(ctx, 1, 100)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, MsgNotSubscribed, conflict.Message)

	_, err = f.ledger.Subscribe(ctx, 1, plan.PlanID)
	require.NoError(t, err)

	credits, err = f.ledger.UseCredit(ctx, 1, 100)
	require.NoError(t, err)
	require.Equal(t, models.Credits{Limit: 2, Used: 1}, credits)

	_, err = f.ledger.UseCredit(ctx, 1, 101)
	require.NoError(t, err)

	_, err = f.ledger.UseCredit(ctx, 1, 102)
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, MsgNoCreditsLeft, conflict.Message)

	credits, err = f.ledger.CreditsFor(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.Credits{Limit: 2, Used: 2}, credits)
	require.Zero(t, credits.Remaining())

	// Usage from a previous period is not counted against a new entry
	f.advance(31 * 24 * time.Hour)
	_, err = f.ledger.Subscribe(ctx, 1, plan.PlanID)
	require.NoError(t, err)

	credits, err = f.ledger.CreditsFor(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.Credits{Limit: 2, Used: 0}, credits)
}

func TestTransientErrors(t *testing.T) {
	unavailable := &unavailableStore{}

	catalog := NewCatalog(unavailable)
	ledger, err := NewLedger(unavailable, unavailable, memory.NewUsageStore(), LedgerConfig{})
	require.NoError(t, err)

	ctx := context.Background()
	var transient *TransientError

	_, err = catalog.List(ctx)
	require.ErrorAs(t, err, &transient)
	require.ErrorIs(t, err, store.ErrUnavailable)

	_, err = catalog.Create(ctx, planInput("Economic", 5, "5"))
	require.ErrorAs(t, err, &transient)

	require.ErrorAs(t, catalog.Delete(ctx, 1), &transient)

	_, err = ledger.Subscribe(ctx, 1, 1)
	require.ErrorAs(t, err, &transient)

	require.ErrorAs(t, ledger.Unsubscribe(ctx, 1), &transient)

	_, err = ledger.CreditsFor(ctx, 1)
	require.ErrorAs(t, err, &transient)

	t.Run("expired deadline", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := f.ledger.Subscribe(ctx, 1, 1)
		require.ErrorAs(t, err, &transient)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewLedger_NegativePeriod(t *testing.T) {
	_, err := NewLedger(nil, nil, nil, LedgerConfig{BillingPeriod: -time.Hour})
	require.Error(t, err)
}

// constraintPlanStore rejects deletes the way a foreign key restriction
// would, without the guard's typed error.
type constraintPlanStore struct {
	*memory.SubscriptionStore
}

func (s *constraintPlanStore) DeletePlan(ctx context.Context, planID int64, now time.Time) error {
	return fmt.Errorf("delete plan: %w", store.ErrPlanInUse)
}

// deletedUserStore rejects subscribes the way the customer foreign key
// would once the user row is gone.
type deletedUserStore struct {
	*memory.SubscriptionStore
}

func (s *deletedUserStore) Subscribe(ctx context.Context, sub *models.Subscription) error {
	return store.ErrUserNotFound
}

type unavailableStore struct{}

func (unavailableStore) CreatePlan(context.Context, *models.Plan) error {
	return store.ErrUnavailable
}

func (unavailableStore) GetPlan(context.Context, int64) (*models.Plan, error) {
	return nil, store.ErrUnavailable
}

func (unavailableStore) UpdatePlan(context.Context, int64, *models.PlanPatch) (*models.Plan, error) {
	return nil, store.ErrUnavailable
}

func (unavailableStore) DeletePlan(context.Context, int64, time.Time) error {
	return store.ErrUnavailable
}

func (unavailableStore) ListPlans(context.Context) ([]*models.Plan, error) {
	return nil, store.ErrUnavailable
}

func (unavailableStore) CountActiveSubscribers(context.Context, int64, time.Time) (int, error) {
	return 0, store.ErrUnavailable
}

func (unavailableStore) Subscribe(context.Context, *models.Subscription) error {
	return store.ErrUnavailable
}

func (unavailableStore) Unsubscribe(context.Context, int64, time.Time) error {
	return store.ErrUnavailable
}

func (unavailableStore) GetActive(context.Context, int64, time.Time) (*models.Subscription, error) {
	return nil, store.ErrUnavailable
}
