package commands

import (
	"context"

	"github.com/jrsteele09/go-identity-server/internal/security"
	"github.com/jrsteele09/go-identity-server/otp"
	"github.com/jrsteele09/go-identity-server/store/postgres"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type MigrateCmd struct {
	Direction string `arg:"" enum:"up,down" default:"up" help:"up applies pending migrations, down rolls all of them back."`
}

func (c *MigrateCmd) Run(globals *Globals) error {
	cfg, err := loadConfig(globals)
	if err != nil {
		return err
	}
	if err := postgres.Migrate(cfg.GetDatabaseURL(), postgres.Direction(c.Direction)); err != nil {
		return err
	}
	log.Info().Str("direction", c.Direction).Msg("Migrations complete")
	return nil
}

// SweepOTPsCmd is the one-shot form of the sweeper that serve runs in the background, for cron jobs.
type SweepOTPsCmd struct{}

func (c *SweepOTPsCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := loadConfig(globals)
	if err != nil {
		return err
	}
	if cfg.GetDatabaseURL() == "" {
		return errors.New("DATABASE_URL must be set to sweep one-time codes")
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	engine, err := otp.NewEngine(st.otp, security.NewHasher(cfg.GetBcryptCost()))
	if err != nil {
		return err
	}
	n, err := engine.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("count", n).Msg("Swept expired one-time codes")
	return nil
}
