package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bookstore/internal/store/memory"
	"github.com/wolfeidau/bookstore/internal/subscription"
)

func TestLoadPlanSeeds(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`plans:
  - name: Economic
    booksPerMonth: 5
    pricePerMonth: "5.00"
  - name: Premium
    booksPerMonth: 10
    pricePerMonth: 7.5
`), 0o600))

		inputs, err := loadPlanSeeds(path)
		require.NoError(t, err)
		require.Len(t, inputs, 2)
		require.Equal(t, "Economic", inputs[0].Name)
		require.Equal(t, 10, inputs[1].BooksPerMonth)
		require.True(t, decimal.RequireFromString("7.5").Equal(inputs[1].PricePerMonth))
	})

	t.Run("invalid price", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`plans:
  - name: Broken
    booksPerMonth: 1
    pricePerMonth: cheap
`), 0o600))

		_, err := loadPlanSeeds(path)
		require.ErrorContains(t, err, "invalid price")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadPlanSeeds(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
	})
}

func TestSeedPlans(t *testing.T) {
	ctx := context.Background()
	plan := func(name string, books int) subscription.PlanInput {
		return subscription.PlanInput{Name: name, BooksPerMonth: books, PricePerMonth: decimal.RequireFromString("5")}
	}

	t.Run("skips existing names", func(t *testing.T) {
		catalog := subscription.NewCatalog(memory.NewSubscriptionStore())

		created, err := seedPlans(ctx, zerolog.Nop(), catalog, []subscription.PlanInput{plan("Economic", 5), plan("Premium", 10)})
		require.NoError(t, err)
		require.Equal(t, 2, created)

		created, err = seedPlans(ctx, zerolog.Nop(), catalog, []subscription.PlanInput{plan("Economic", 5), plan("Deluxe", 20)})
		require.NoError(t, err)
		require.Equal(t, 1, created)
	})

	t.Run("fails on an empty name", func(t *testing.T) {
		catalog := subscription.NewCatalog(memory.NewSubscriptionStore())

		created, err := seedPlans(ctx, zerolog.Nop(), catalog, []subscription.PlanInput{plan("Economic", 5), plan("  ", 1)})
		require.ErrorContains(t, err, "Plan name is required.")
		require.Equal(t, 1, created)
	})

	t.Run("fails on an overlong name", func(t *testing.T) {
		catalog := subscription.NewCatalog(memory.NewSubscriptionStore())

		_, err := seedPlans(ctx, zerolog.Nop(), catalog, []subscription.PlanInput{plan(strings.Repeat("x", 101), 1)})
		var validation *subscription.ValidationError
		require.ErrorAs(t, err, &validation)
		require.Equal(t, "name", validation.Field)
	})
}
