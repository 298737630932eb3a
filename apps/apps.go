// Package apps manages the OAuth-style applications a developer registers. Each app owns its end-users.
package apps

import (
	"net/url"
	"slices"
	"time"

	"github.com/jrsteele09/go-identity-server/internal/errors"
)

type App struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"name"`
	ClientID     string    `json:"client_id"`
	SecretHash   string    `json:"-"` // bcrypt of the client secret, which is shown once at creation
	RedirectURIs []string  `json:"redirect_uris"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a *App) GetTenantID() string         { return a.TenantID }
func (a *App) SetTenantID(tenantID string) { a.TenantID = tenantID }

// HasRedirectURI checks if uri is registered for this app
func (a *App) HasRedirectURI(uri string) bool {
	return slices.Contains(a.RedirectURIs, uri)
}

// ValidateRedirectURIs requires every entry to be an absolute http(s) URL without a fragment.
func ValidateRedirectURIs(uris []string) error {
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Fragment != "" {
			return errors.Wrapf(errors.ErrInvalidRequest, "redirect uri %q", raw)
		}
	}
	return nil
}
