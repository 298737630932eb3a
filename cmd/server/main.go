package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/jrsteele09/go-identity-server/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug     bool `help:"Enable debug logging regardless of LOG_LEVEL."`
		Version   kong.VersionFlag
		Serve     commands.ServeCmd     `cmd:"" default:"1" help:"Start the identity server."`
		Migrate   commands.MigrateCmd   `cmd:"" help:"Apply or roll back the database migrations."`
		SweepOTPs commands.SweepOTPsCmd `cmd:"" name:"sweep-otps" help:"Delete expired one-time codes once and exit."`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("identity-server"),
		kong.Description("Multi-tenant identity server for developers and their app users."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
