package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-identity-server/principals"
)

// Use distinguishes access tokens from refresh tokens inside the signed payload.
type Use string

const (
	UseAccess  Use = "access"
	UseRefresh Use = "refresh"
)

// Claims carried by both token kinds. SessionID is only set on refresh tokens issued against a session;
// refresh tokens from before sessions existed have none and fall back to the principal's legacy hash.
type Claims struct {
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	Kind      principals.Kind `json:"kind"`
	AppID     string          `json:"app,omitempty"`
	TenantID  string          `json:"tid"`
	SessionID string          `json:"sid,omitempty"`
	Use       Use             `json:"use"`
	jwt.RegisteredClaims
}

// Subject is the identity a token is minted for.
type Subject struct {
	PrincipalID string
	Email       string
	Kind        principals.Kind
	TenantID    string
	AppID       string
}

// SubjectOf builds the token subject for a principal.
func SubjectOf(p *principals.Principal) Subject {
	return Subject{
		PrincipalID: p.ID,
		Email:       p.Email,
		Kind:        p.Kind,
		TenantID:    p.TenantID,
		AppID:       p.AppID,
	}
}

// Identity recovers the subject a token was minted for.
func (c *Claims) Identity() Subject {
	return Subject{
		PrincipalID: c.Subject,
		Email:       c.Email,
		Kind:        c.Kind,
		TenantID:    c.TenantID,
		AppID:       c.AppID,
	}
}
