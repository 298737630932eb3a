// Package principals models the two kinds of account that can authenticate: developers and the
// end-users of a developer's apps.
package principals

import (
	"time"
)

// Kind tags which variant a Principal is.
type Kind string

const (
	KindDeveloper Kind = "developer"
	KindAppUser   Kind = "appUser"
)

// Role is the value carried in the role claim of issued tokens.
func (k Kind) Role() string {
	switch k {
	case KindDeveloper:
		return "developer"
	case KindAppUser:
		return "user"
	}
	return ""
}

func (k Kind) Valid() bool {
	return k == KindDeveloper || k == KindAppUser
}

// Principal is a developer or an app user.
// A developer is its own tenant, so its TenantID equals its ID. An app user belongs to one app of one tenant.
type Principal struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	TenantID  string    `json:"tenant_id"`
	AppID     string    `json:"app_id,omitempty"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PasswordHash string `json:"-"`
	// LegacyRefreshHash is the single refresh token hash from before per-device sessions existed.
	LegacyRefreshHash string `json:"-"`
}

func (p *Principal) GetTenantID() string         { return p.TenantID }
func (p *Principal) SetTenantID(tenantID string) { p.TenantID = tenantID }

// View is the read model returned to clients. It carries no secrets.
type View struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	AppID     string    `json:"app_id,omitempty"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Principal) View() View {
	return View{
		ID:        p.ID,
		Kind:      p.Kind,
		AppID:     p.AppID,
		Email:     p.Email,
		Phone:     p.Phone,
		Verified:  p.Verified,
		CreatedAt: p.CreatedAt,
	}
}
