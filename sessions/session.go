// Package sessions is the per-device registry of issued refresh tokens.
//
// Every refresh token is backed by exactly one Session holding its hash. Sessions are revoked, never
// deleted, so the table doubles as an audit trail. A revoked or expired session never validates.
package sessions

import (
	"time"

	"github.com/jrsteele09/go-identity-server/principals"
)

type Session struct {
	ID            string          // Unique session identifier (UUID), carried in the refresh token's sid claim
	TenantID      string          // Tenant this session belongs to
	PrincipalID   string          // Owner
	PrincipalKind principals.Kind // Owner's kind
	UserAgent     string
	IP            string
	RefreshHash   string // bcrypt of the SHA-256 of the refresh token
	Revoked       bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *Session) GetTenantID() string         { return s.TenantID }
func (s *Session) SetTenantID(tenantID string) { s.TenantID = tenantID }

// View is the device listing shown to the owner.
type View struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) View() View {
	return View{
		ID:        s.ID,
		UserAgent: s.UserAgent,
		IP:        s.IP,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}
