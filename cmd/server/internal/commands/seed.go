package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/bookstore/internal/logger"
	"github.com/wolfeidau/bookstore/internal/store"
	"github.com/wolfeidau/bookstore/internal/subscription"
	"gopkg.in/yaml.v3"
)

// planSeedFile is the YAML layout accepted by seed-plans:
//
//	plans:
//	  - name: Economic
//	    booksPerMonth: 5
//	    pricePerMonth: "5.00"
type planSeedFile struct {
	Plans []planSeed `yaml:"plans"`
}

type planSeed struct {
	Name          string `yaml:"name"`
	BooksPerMonth int    `yaml:"booksPerMonth"`
	PricePerMonth string `yaml:"pricePerMonth"`
}

type SeedPlansCmd struct {
	File string `arg:"" help:"YAML file listing subscription plans" type:"existingfile"`

	StoreType string        `help:"store type (memory or postgres)" default:"postgres" env:"BOOKSTORE_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *SeedPlansCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	inputs, err := loadPlanSeeds(c.File)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, log, c.StoreType, &c.Postgres)
	if err != nil {
		return err
	}
	defer st.close()

	created, err := seedPlans(ctx, log, subscription.NewCatalog(st.plans), inputs)
	if err != nil {
		return err
	}

	log.Info().Int("created", created).Int("total", len(inputs)).Msg("Plan seeding finished")
	return nil
}

// seedPlans creates each plan in order, skipping names that already exist so
// the command can be re-run against a populated catalog.
func seedPlans(ctx context.Context, log zerolog.Logger, catalog *subscription.Catalog, inputs []subscription.PlanInput) (int, error) {
	created := 0
	for _, input := range inputs {
		plan, err := catalog.Create(ctx, input)
		if err != nil {
			if errors.Is(err, store.ErrPlanNameTaken) {
				log.Warn().Str("name", input.Name).Msg(err.Error())
				continue
			}
			return created, fmt.Errorf("failed to seed plan %q: %w", input.Name, err)
		}
		created++
		log.Info().Int64("plan_id", plan.PlanID).Str("name", plan.Name).Msg("Seeded plan")
	}
	return created, nil
}

func loadPlanSeeds(path string) ([]subscription.PlanInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file planSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	inputs := make([]subscription.PlanInput, 0, len(file.Plans))
	for i, p := range file.Plans {
		price, err := decimal.NewFromString(p.PricePerMonth)
		if err != nil {
			return nil, fmt.Errorf("plan %d (%s): invalid price %q: %w", i, p.Name, p.PricePerMonth, err)
		}
		inputs = append(inputs, subscription.PlanInput{
			Name:          p.Name,
			BooksPerMonth: p.BooksPerMonth,
			PricePerMonth: price,
		})
	}

	return inputs, nil
}
