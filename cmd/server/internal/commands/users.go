package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfeidau/bookstore/internal/logger"
	"github.com/wolfeidau/bookstore/internal/models"
)

const minPasswordLength = 8

type CreateUserCmd struct {
	Email     string `help:"user email" required:""`
	Password  string `help:"user password" required:"" env:"BOOKSTORE_USER_PASSWORD"`
	FirstName string `help:"first name" default:""`
	LastName  string `help:"last name" default:""`
	Role      string `help:"user role" default:"customer" enum:"admin,customer"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *CreateUserCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	if len(c.Password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	st, err := openStores(ctx, log, "postgres", &c.Postgres)
	if err != nil {
		return err
	}
	defer st.close()

	user, err := newUser(strings.TrimSpace(c.Email), c.Password, c.FirstName, c.LastName, models.Role(c.Role))
	if err != nil {
		return err
	}

	if err := st.users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Int64("user_id", user.UserID).Str("role", c.Role).Msg("Created user")
	return nil
}
