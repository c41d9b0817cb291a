package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ClientConfig holds configuration for the Redis client backing the session store.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int

	// DialTimeout bounds a single connection attempt.
	// Default: 5s
	DialTimeout time.Duration

	// StartupTimeout is how long NewClient keeps retrying the initial ping.
	// Zero disables retries.
	StartupTimeout time.Duration
}

// Validate checks that the client configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	return nil
}

// NewClient creates a Redis client and pings it, retrying with exponential
// backoff for up to StartupTimeout.
func NewClient(ctx context.Context, cfg *ClientConfig) (*goredis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ping := func() (string, error) {
		return client.Ping(ctx).Result()
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("Redis not ready")
		}),
	}
	if cfg.StartupTimeout > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(cfg.StartupTimeout))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}

	if _, err := backoff.Retry(ctx, ping, opts...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}
