package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/bookstore/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug      bool `help:"Enable debug mode."`
		Version    kong.VersionFlag
		Serve      commands.ServeCmd      `cmd:"" help:"Start the bookstore API server"`
		Migrate    commands.MigrateCmd    `cmd:"" help:"Run database migrations"`
		SeedPlans  commands.SeedPlansCmd  `cmd:"" help:"Create subscription plans from a YAML file"`
		CreateUser commands.CreateUserCmd `cmd:"" help:"Create a user account"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("bookstore"),
		kong.Description("Online bookstore subscription API"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
