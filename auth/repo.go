package auth

import (
	"github.com/jrsteele09/go-identity-server/otp"
	"github.com/jrsteele09/go-identity-server/principals"
	"github.com/jrsteele09/go-identity-server/sessions"
)

// Repos holds the stores an Issuer works against. Principals must hold the Issuer's kind.
type Repos struct {
	Principals principals.Repo
	Sessions   *sessions.Registry
	OTP        *otp.Engine
}
