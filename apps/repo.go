package apps

import "context"

// Repo stores apps. Every method except FindByClientID is filtered by the tenant bound to ctx.
type Repo interface {
	Create(ctx context.Context, app *App) error
	Get(ctx context.Context, id string) (*App, error)
	List(ctx context.Context) ([]*App, error)
	Update(ctx context.Context, app *App) error
	Delete(ctx context.Context, id string) error
	// FindByClientID resolves the app, and with it the tenant, for an end-user request.
	FindByClientID(ctx context.Context, clientID string) (*App, error)
}
