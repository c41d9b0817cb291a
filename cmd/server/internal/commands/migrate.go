package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/bookstore/internal/logger"
	postgresstore "github.com/wolfeidau/bookstore/internal/store/postgres"
)

type MigrateCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	if err := c.Postgres.validate(); err != nil {
		return err
	}

	pool, err := postgresstore.NewPool(ctx, c.Postgres.poolConfig())
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	if err := postgresstore.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations completed")
	return nil
}
