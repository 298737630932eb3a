package commands

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-identity-server/apps"
	apprepofake "github.com/jrsteele09/go-identity-server/apps/repofake"
	"github.com/jrsteele09/go-identity-server/internal/config"
	"github.com/jrsteele09/go-identity-server/otp"
	otprepofake "github.com/jrsteele09/go-identity-server/otp/repofake"
	"github.com/jrsteele09/go-identity-server/principals"
	principalrepofake "github.com/jrsteele09/go-identity-server/principals/repofake"
	"github.com/jrsteele09/go-identity-server/sessions"
	sessionrepofake "github.com/jrsteele09/go-identity-server/sessions/repofake"
	"github.com/jrsteele09/go-identity-server/store/postgres"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// setupLogger configures the global logger: console output in DEV, JSON otherwise.
func setupLogger(cfg config.EnvConfig, debug bool) {
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil || cfg.GetLogLevel() == "" {
		level = zerolog.InfoLevel
	}
	if debug {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()
	if cfg.GetEnv() == "DEV" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
}

func loadConfig(globals *Globals) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogger(cfg, globals.Debug)
	return cfg, nil
}

// stores holds one repository per persisted entity, backed by Postgres or by memory.
type stores struct {
	developers principals.Repo
	appUsers   principals.Repo
	apps       apps.Repo
	otp        otp.Repo
	sessions   sessions.Repo
	close      func()
}

func openStores(ctx context.Context, cfg config.StoreConfig) (*stores, error) {
	dsn := cfg.GetDatabaseURL()
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL is not set, using in-memory stores; data is lost on restart")
		return &stores{
			developers: principalrepofake.NewFakePrincipalRepo(principals.KindDeveloper),
			appUsers:   principalrepofake.NewFakePrincipalRepo(principals.KindAppUser),
			apps:       apprepofake.NewFakeAppRepo(),
			otp:        otprepofake.NewFakeOTPRepo(),
			sessions:   sessionrepofake.NewFakeSessionRepo(),
			close:      func() {},
		}, nil
	}

	if cfg.GetAutoMigrate() {
		if err := postgres.Migrate(dsn, postgres.Up); err != nil {
			return nil, errors.Wrap(err, "auto migrate")
		}
	}
	pool, err := postgres.NewPool(ctx, &postgres.PoolConfig{ConnString: dsn})
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Using PostgreSQL stores")
	return postgresStores(pool), nil
}

func postgresStores(pool *pgxpool.Pool) *stores {
	return &stores{
		developers: postgres.NewDeveloperStore(pool),
		appUsers:   postgres.NewAppUserStore(pool),
		apps:       postgres.NewAppStore(pool),
		otp:        postgres.NewOTPStore(pool),
		sessions:   postgres.NewSessionStore(pool),
		close:      pool.Close,
	}
}
