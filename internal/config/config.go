// Package config loads application settings from the environment and an optional .env file using Viper.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SecurityConfig
	MailConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	IsProduction() bool
	GetLogLevel() string
	GetOtelEnabled() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type mainConfig struct {
	EnvVars
	Cors
	Tokens
	Security
	Mail
	Store
}

// Load reads .env (if present) then the process environment. Env vars override .env.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	c := mainConfig{
		EnvVars:  EnvVars{v: v},
		Cors:     Cors{v: v},
		Tokens:   Tokens{v: v},
		Security: Security{v: v},
		Mail:     Mail{v: v},
		Store:    Store{v: v},
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(portEnvVar, "8080")
	v.SetDefault(appNameVar, "Go Identity Server")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")
	v.SetDefault(otelEnabledVar, false)

	v.SetDefault(allowedOriginsVar, "http://localhost:3000")

	v.SetDefault(accessTTLVar, "15m")
	v.SetDefault(refreshTTLVar, "168h")
	v.SetDefault(issuerVar, "go-identity-server")
	v.SetDefault(rotateRefreshVar, false)

	v.SetDefault(bcryptCostVar, 12)
	v.SetDefault(otpExpiryMinutesVar, 10)
	v.SetDefault(otpSweepIntervalVar, "1h")

	v.SetDefault(smtpPortVar, "587")

	v.SetDefault(autoMigrateVar, false)
}

func validate(c mainConfig) error {
	access, refresh := c.GetAccessTokenSecret(), c.GetRefreshTokenSecret()
	if access == "" || refresh == "" {
		return errors.New("[config.Load] JWT_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if access == refresh {
		return errors.New("[config.Load] JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}

	cost := c.GetBcryptCost()
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return errors.Errorf("[config.Load] BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.IsProduction() && cost < minProductionBcryptCost {
		return errors.Errorf("[config.Load] BCRYPT_COST must be at least %d in production", minProductionBcryptCost)
	}
	if c.GetOTPExpiry() <= 0 {
		return errors.New("[config.Load] OTP_EXPIRY_MINUTES must be positive")
	}
	if _, err := parseTrustedProxies(c.Security.v.GetString(trustedProxiesVar)); err != nil {
		return errors.Wrap(err, "[config.Load]")
	}
	return nil
}
