package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	accessSecretVar  = "JWT_SECRET"
	refreshSecretVar = "JWT_REFRESH_SECRET"
	accessTTLVar     = "JWT_ACCESS_TTL"
	refreshTTLVar    = "JWT_REFRESH_TTL"
	issuerVar        = "JWT_ISSUER"
	rotateRefreshVar = "ROTATE_REFRESH_TOKENS"
)

type TokenConfig interface {
	GetAccessTokenSecret() string
	GetRefreshTokenSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetIssuer() string
	GetRotateRefreshTokens() bool
}

type Tokens struct {
	v *viper.Viper
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetAccessTokenSecret() string {
	return t.v.GetString(accessSecretVar)
}

func (t Tokens) GetRefreshTokenSecret() string {
	return t.v.GetString(refreshSecretVar)
}

func (t Tokens) GetAccessTokenExpiry() time.Duration {
	if d := t.v.GetDuration(accessTTLVar); d > 0 {
		return d
	}
	return 15 * time.Minute
}

func (t Tokens) GetRefreshTokenExpiry() time.Duration {
	if d := t.v.GetDuration(refreshTTLVar); d > 0 {
		return d
	}
	return 7 * 24 * time.Hour // 7 days
}

func (t Tokens) GetIssuer() string {
	return t.v.GetString(issuerVar)
}

// GetRotateRefreshTokens reports whether a refresh also replaces the refresh token and its session.
func (t Tokens) GetRotateRefreshTokens() bool {
	return t.v.GetBool(rotateRefreshVar)
}
