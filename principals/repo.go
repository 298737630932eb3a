package principals

import "context"

// Repo stores principals of one Kind.
//
// The developer store is the tenant root and is not filtered by tenant. The app user store reads and writes
// only rows matching the tenant and app bound to ctx, and returns ErrContextMissing when either is absent.
// Lookups return errors.ErrNotFound for missing rows and Create returns errors.ErrConflict for a taken email.
type Repo interface {
	Create(ctx context.Context, p *Principal) error
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	Update(ctx context.Context, p *Principal) error
	Delete(ctx context.Context, id string) error
	MarkVerified(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	// SetLegacyRefreshHash stores the single legacy refresh hash; "" clears it.
	SetLegacyRefreshHash(ctx context.Context, id, hash string) error
}
