package postgres

import (
	"embed"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate applies the embedded migrations in direction. Being already at the target version is not an error.
func Migrate(dsn string, direction Direction) error {
	if dsn == "" {
		return errors.New("[postgres.Migrate] DATABASE_URL is not set")
	}

	target, err := migrationURL(dsn)
	if err != nil {
		return err
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "[postgres.Migrate] source")
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, target)
	if err != nil {
		return errors.Wrap(err, "[postgres.Migrate]")
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return errors.Errorf("[postgres.Migrate] direction must be up or down, got %q", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Str("direction", string(direction)).Msg("Database schema already current")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "[postgres.Migrate] %s", direction)
	}

	version, dirty, _ := m.Version()
	log.Info().Str("direction", string(direction)).Uint("version", version).Bool("dirty", dirty).Msg("Applied migrations")
	return nil
}

// migrationURL points a postgres:// DSN at the pgx/v5 migrate driver so migrations share the pool's driver.
func migrationURL(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", errors.Wrap(err, "[postgres.migrationURL] DATABASE_URL must be a URL")
	}
	switch u.Scheme {
	case "postgres", "postgresql", "pgx5":
		u.Scheme = "pgx5"
		return u.String(), nil
	default:
		return "", errors.Errorf("[postgres.migrationURL] unsupported DATABASE_URL scheme %q", u.Scheme)
	}
}
