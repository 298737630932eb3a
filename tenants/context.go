// Package tenants binds the active tenant to a request context and enforces it at the data-access boundary.
//
// A tenant is a developer account. Every row owned by a developer (apps, app users, one-time codes,
// sessions) carries the developer's id, and stores only read or write rows matching the tenant bound here.
package tenants

import (
	"context"

	"github.com/jrsteele09/go-identity-server/internal/errors"
)

type contextKey int

const (
	tenantKey contextKey = iota
	appKey
)

// WithTenant returns a copy of ctx bound to tenantID.
// Everything that receives the derived context, including goroutines, sees the same tenant.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// WithApp binds both the tenant and the app an end-user request belongs to.
func WithApp(ctx context.Context, tenantID, appID string) context.Context {
	return context.WithValue(WithTenant(ctx, tenantID), appKey, appID)
}

// RunWithTenant runs fn with ctx bound to tenantID.
func RunWithTenant(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	return fn(WithTenant(ctx, tenantID))
}

// CurrentTenant returns the bound tenant id, or ErrContextMissing. It never defaults.
func CurrentTenant(ctx context.Context) (string, error) {
	tenantID, ok := ctx.Value(tenantKey).(string)
	if !ok || tenantID == "" {
		return "", errors.ErrContextMissing
	}
	return tenantID, nil
}

// CurrentApp returns the bound app id or "" for developer requests.
func CurrentApp(ctx context.Context) string {
	appID, _ := ctx.Value(appKey).(string)
	return appID
}
