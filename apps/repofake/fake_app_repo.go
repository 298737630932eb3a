package apprepofake

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/apps"
	"github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/tenants"
)

var _ apps.Repo = (*FakeAppRepo)(nil)

type FakeAppRepo struct {
	apps map[string]*apps.App
	lock sync.RWMutex
}

func NewFakeAppRepo() apps.Repo {
	return &FakeAppRepo{
		apps: make(map[string]*apps.App),
	}
}

func (r *FakeAppRepo) Create(ctx context.Context, app *apps.App) error {
	if err := tenants.Stamp(ctx, app); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	for _, existing := range r.apps {
		if existing.ClientID == app.ClientID {
			return errors.Wrapf(errors.ErrConflict, "client id %s", app.ClientID)
		}
	}
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	app.CreatedAt, app.UpdatedAt = now, now
	r.apps[app.ID] = clone(app)
	return nil
}

func (r *FakeAppRepo) Get(ctx context.Context, id string) (*apps.App, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	app, ok := r.apps[id]
	if !ok {
		if _, err := tenants.CurrentTenant(ctx); err != nil {
			return nil, err
		}
		return nil, errors.ErrNotFound
	}
	if err := tenants.Check(ctx, app); err != nil {
		return nil, err
	}
	return clone(app), nil
}

func (r *FakeAppRepo) List(ctx context.Context) ([]*apps.App, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	all := make([]*apps.App, 0, len(r.apps))
	for _, app := range r.apps {
		all = append(all, clone(app))
	}
	owned, err := tenants.Filter(ctx, all)
	if err != nil {
		return nil, err
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})
	return owned, nil
}

func (r *FakeAppRepo) Update(ctx context.Context, app *apps.App) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored, ok := r.apps[app.ID]
	if !ok {
		return errors.ErrNotFound
	}
	if err := tenants.Check(ctx, stored); err != nil {
		return err
	}
	stored.Name = app.Name
	stored.RedirectURIs = slices.Clone(app.RedirectURIs)
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *FakeAppRepo) Delete(ctx context.Context, id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored, ok := r.apps[id]
	if !ok {
		return errors.ErrNotFound
	}
	if err := tenants.Check(ctx, stored); err != nil {
		return err
	}
	delete(r.apps, id)
	return nil
}

func (r *FakeAppRepo) FindByClientID(_ context.Context, clientID string) (*apps.App, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, app := range r.apps {
		if app.ClientID == clientID {
			return clone(app), nil
		}
	}
	return nil, errors.ErrNotFound
}

func clone(app *apps.App) *apps.App {
	copied := *app
	copied.RedirectURIs = slices.Clone(app.RedirectURIs)
	return &copied
}
