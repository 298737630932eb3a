package commands

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-identity-server/apps"
	"github.com/jrsteele09/go-identity-server/auth"
	"github.com/jrsteele09/go-identity-server/internal/config"
	"github.com/jrsteele09/go-identity-server/internal/security"
	"github.com/jrsteele09/go-identity-server/internal/telemetry"
	"github.com/jrsteele09/go-identity-server/mail"
	"github.com/jrsteele09/go-identity-server/otp"
	"github.com/jrsteele09/go-identity-server/principals"
	"github.com/jrsteele09/go-identity-server/server"
	"github.com/jrsteele09/go-identity-server/sessions"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/jrsteele09/go-identity-server/token/redisrevocation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type ServeCmd struct {
	ShutdownTimeout time.Duration `help:"how long in-flight requests get to finish on shutdown" default:"10s"`
	NoBanner        bool          `help:"skip the startup banner"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, err := loadConfig(globals)
	if err != nil {
		return err
	}
	if !c.NoBanner {
		displayAppname(cfg.GetAppName())
	}
	log.Info().Str("version", globals.Version).Str("env", cfg.GetEnv()).Msg("Starting identity server")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.GetOtelEnabled() {
		shutdown, err := telemetry.InitTelemetry(ctx, cfg.GetAppName(), globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Failed to shutdown telemetry")
				}
			}()
		}
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	hasher := security.NewHasher(cfg.GetBcryptCost())
	engine, err := otp.NewEngine(st.otp, hasher, otp.WithTTL(cfg.GetOTPExpiry()))
	if err != nil {
		return err
	}
	registry, err := sessions.NewRegistry(st.sessions, hasher)
	if err != nil {
		return err
	}
	tokens, err := token.NewHMAC(cfg.GetAccessTokenSecret(), cfg.GetRefreshTokenSecret(),
		token.WithIssuer(cfg.GetIssuer()),
		token.WithTokenExpiry(cfg.GetAccessTokenExpiry(), cfg.GetRefreshTokenExpiry()),
	)
	if err != nil {
		return err
	}
	sender, err := newSender(cfg, cfg.GetOTPExpiry())
	if err != nil {
		return err
	}

	options := []auth.IssuerOption{auth.WithRefreshRotation(cfg.GetRotateRefreshTokens())}
	if url := cfg.GetRedisURL(); url != "" {
		client, err := redisrevocation.NewClient(ctx, url)
		if err != nil {
			return err
		}
		defer client.Close()
		options = append(options, auth.WithRevokedTokenCache(redisrevocation.New(client)))
		log.Info().Msg("Using Redis for revoked access tokens")
	} else {
		options = append(options, auth.WithRevokedTokenCache(token.NewInMemoryRevokedTokenCache()))
	}

	developers, err := auth.NewIssuer(principals.KindDeveloper,
		auth.Repos{Principals: st.developers, Sessions: registry, OTP: engine},
		tokens, sender, hasher, options...)
	if err != nil {
		return err
	}
	users, err := auth.NewIssuer(principals.KindAppUser,
		auth.Repos{Principals: st.appUsers, Sessions: registry, OTP: engine},
		tokens, sender, hasher, options...)
	if err != nil {
		return err
	}

	handler, err := server.New(cfg, server.Deps{
		Developers: developers,
		Users:      users,
		Apps:       apps.NewService(st.apps, hasher),
	})
	if err != nil {
		return err
	}

	go otp.NewSweeper(engine, cfg.GetOTPSweepInterval()).Run(ctx)

	srv := configureHTTPServer(cfg.GetPort(), handler)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server.ListenAndServe")
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	log.Info().Msg("Server stopped")
	return nil
}

// newSender returns the SMTP sender, or an in-memory outbox when SMTP is not configured outside production.
func newSender(cfg config.Config, expiry time.Duration) (mail.Sender, error) {
	if cfg.GetSmtpHost() == "" {
		if cfg.IsProduction() {
			return nil, errors.New("SMTP_HOST must be set in production")
		}
		log.Warn().Msg("SMTP_HOST is not set, one-time codes are kept in memory and not delivered")
		return mail.NewOutbox(), nil
	}
	sender, err := mail.NewSMTPSender(cfg, expiry)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
