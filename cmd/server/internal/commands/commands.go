package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/bookstore/internal/store"
	memorystore "github.com/wolfeidau/bookstore/internal/store/memory"
	postgresstore "github.com/wolfeidau/bookstore/internal/store/postgres"
	redisstore "github.com/wolfeidau/bookstore/internal/store/redis"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

type PostgresFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	StartupTimeout  time.Duration `help:"how long to wait for the database at startup" default:"30s" env:"BOOKSTORE_POSTGRES_STARTUP_TIMEOUT"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"BOOKSTORE_POSTGRES_AUTO_MIGRATE"`
}

func (p *PostgresFlags) validate() error {
	if p.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (p *PostgresFlags) poolConfig() *postgresstore.PoolConfig {
	return &postgresstore.PoolConfig{
		ConnString:      p.ConnString,
		MaxConns:        p.MaxConns,
		MinConns:        p.MinConns,
		MaxConnLifetime: p.MaxConnLifetime,
		MaxConnIdleTime: p.MaxConnIdleTime,
		StartupTimeout:  p.StartupTimeout,
	}
}

type RedisFlags struct {
	Addr           string        `help:"Redis address" default:"localhost:6379" env:"BOOKSTORE_REDIS_ADDR"`
	Password       string        `help:"Redis password" default:"" env:"BOOKSTORE_REDIS_PASSWORD"`
	DB             int           `help:"Redis database number" default:"0" env:"BOOKSTORE_REDIS_DB"`
	StartupTimeout time.Duration `help:"how long to wait for Redis at startup" default:"30s" env:"BOOKSTORE_REDIS_STARTUP_TIMEOUT"`
}

// stores groups the storage backends behind the services.
type stores struct {
	plans         store.PlanStore
	subscriptions store.SubscriptionStore
	users         store.UserStore
	usage         store.UsageStore
	close         func()
}

// openStores builds the plan, ledger, user and usage stores for the chosen backend.
func openStores(ctx context.Context, log zerolog.Logger, storeType string, pg *PostgresFlags) (*stores, error) {
	switch storeType {
	case "postgres":
		if err := pg.validate(); err != nil {
			return nil, err
		}

		// Create shared connection pool for all PostgreSQL stores
		pool, err := postgresstore.NewPool(ctx, pg.poolConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		// Run migrations if enabled
		if pg.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

		return &stores{
			plans:         postgresstore.NewPlanStore(pool),
			subscriptions: postgresstore.NewSubscriptionStore(pool),
			users:         postgresstore.NewUserStore(pool),
			usage:         postgresstore.NewUsageStore(pool),
			close:         pool.Close,
		}, nil

	default:
		subs := memorystore.NewSubscriptionStore()

		log.Info().Msg("Using in-memory stores, data is lost on restart")

		return &stores{
			plans:         subs,
			subscriptions: subs,
			users:         memorystore.NewUserStore(),
			usage:         memorystore.NewUsageStore(),
			close:         func() {},
		}, nil
	}
}

// openSessionStore returns the session backend and a function releasing it.
func openSessionStore(ctx context.Context, log zerolog.Logger, sessionStoreType string, flags *RedisFlags) (store.SessionStore, func(), error) {
	switch sessionStoreType {
	case "redis":
		client, err := redisstore.NewClient(ctx, &redisstore.ClientConfig{
			Addr:           flags.Addr,
			Password:       flags.Password,
			DB:             flags.DB,
			StartupTimeout: flags.StartupTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		log.Info().Str("addr", flags.Addr).Msg("Using Redis session store")

		return redisstore.NewSessionStore(client), func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		}, nil

	default:
		log.Info().Msg("Using in-memory session store")
		return memorystore.NewSessionStore(), func() {}, nil
	}
}
