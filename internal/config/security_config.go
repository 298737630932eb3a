package config

import (
	"net/netip"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/spf13/viper"
)

const (
	bcryptCostVar       = "BCRYPT_COST"
	otpExpiryMinutesVar = "OTP_EXPIRY_MINUTES"
	otpSweepIntervalVar = "OTP_SWEEP_INTERVAL"
	cookieSecureVar     = "COOKIE_SECURE"
	trustedProxiesVar   = "TRUSTED_PROXIES"

	minProductionBcryptCost = 10
)

type SecurityConfig interface {
	GetBcryptCost() int
	GetOTPExpiry() time.Duration
	GetOTPSweepInterval() time.Duration
	GetCookieSecure() bool
	GetTrustedProxies() []netip.Prefix
}

type Security struct {
	v *viper.Viper
}

var _ SecurityConfig = Security{}

func (s Security) GetBcryptCost() int {
	return s.v.GetInt(bcryptCostVar)
}

func (s Security) GetOTPExpiry() time.Duration {
	return time.Duration(s.v.GetInt(otpExpiryMinutesVar)) * time.Minute
}

func (s Security) GetOTPSweepInterval() time.Duration {
	if d := s.v.GetDuration(otpSweepIntervalVar); d > 0 {
		return d
	}
	return time.Hour
}

// GetCookieSecure defaults to true in production unless COOKIE_SECURE says otherwise.
func (s Security) GetCookieSecure() bool {
	if s.v.IsSet(cookieSecureVar) {
		return s.v.GetBool(cookieSecureVar)
	}
	return EnvVars{v: s.v}.IsProduction()
}

// GetTrustedProxies returns the proxies allowed to report a client address in X-Forwarded-For or X-Real-IP.
// Entries that fail to parse are skipped; Load rejects them.
func (s Security) GetTrustedProxies() []netip.Prefix {
	prefixes, _ := parseTrustedProxies(s.v.GetString(trustedProxiesVar))
	return prefixes
}

// parseTrustedProxies accepts a comma separated list of addresses and CIDR ranges.
func parseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, errors.Wrapf(err, "%s entry %q", trustedProxiesVar, entry)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "%s entry %q", trustedProxiesVar, entry)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}
