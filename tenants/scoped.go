package tenants

import (
	"context"

	"github.com/jrsteele09/go-identity-server/internal/errors"
)

// Scoped is implemented by every entity that belongs to exactly one tenant.
type Scoped interface {
	GetTenantID() string
	SetTenantID(tenantID string)
}

// Stamp sets row's tenant from ctx. Stores call it on every insert so the tenant never comes from the caller.
func Stamp(ctx context.Context, row Scoped) error {
	tenantID, err := CurrentTenant(ctx)
	if err != nil {
		return err
	}
	row.SetTenantID(tenantID)
	return nil
}

// Check asserts row belongs to the tenant bound to ctx.
// A row owned by another tenant is reported as ErrNotFound so it is indistinguishable from an absent one.
func Check(ctx context.Context, row Scoped) error {
	tenantID, err := CurrentTenant(ctx)
	if err != nil {
		return err
	}
	if row.GetTenantID() != tenantID {
		return errors.ErrNotFound
	}
	return nil
}

// Filter keeps the rows owned by the tenant bound to ctx.
func Filter[T Scoped](ctx context.Context, rows []T) ([]T, error) {
	tenantID, err := CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if row.GetTenantID() == tenantID {
			out = append(out, row)
		}
	}
	return out, nil
}
