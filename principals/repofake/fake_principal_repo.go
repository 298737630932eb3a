package principalrepofake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/principals"
	"github.com/jrsteele09/go-identity-server/tenants"
)

var _ principals.Repo = (*FakePrincipalRepo)(nil)

// FakePrincipalRepo keeps principals of one kind in memory with the same scoping rules as the Postgres stores.
type FakePrincipalRepo struct {
	kind       principals.Kind
	principals map[string]*principals.Principal
	lock       sync.RWMutex
}

func NewFakePrincipalRepo(kind principals.Kind) principals.Repo {
	return &FakePrincipalRepo{
		kind:       kind,
		principals: make(map[string]*principals.Principal),
	}
}

type scope struct {
	tenantID string
	appID    string
}

func (r *FakePrincipalRepo) scope(ctx context.Context) (scope, error) {
	if r.kind == principals.KindDeveloper {
		return scope{}, nil
	}
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return scope{}, err
	}
	appID := tenants.CurrentApp(ctx)
	if appID == "" {
		return scope{}, errors.ErrContextMissing
	}
	return scope{tenantID: tenantID, appID: appID}, nil
}

func (s scope) matches(p *principals.Principal) bool {
	return s.tenantID == "" || (p.TenantID == s.tenantID && p.AppID == s.appID)
}

func (r *FakePrincipalRepo) Create(ctx context.Context, p *principals.Principal) error {
	s, err := r.scope(ctx)
	if err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Kind = r.kind
	if r.kind == principals.KindDeveloper {
		p.TenantID = p.ID
		p.AppID = ""
	} else {
		p.TenantID = s.tenantID
		p.AppID = s.appID
	}

	for _, existing := range r.principals {
		if s.matches(existing) && strings.EqualFold(existing.Email, p.Email) {
			return errors.Wrapf(errors.ErrConflict, "email %s", p.Email)
		}
	}

	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	stored := *p
	r.principals[p.ID] = &stored
	return nil
}

func (r *FakePrincipalRepo) FindByID(ctx context.Context, id string) (*principals.Principal, error) {
	s, err := r.scope(ctx)
	if err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	p, ok := r.principals[id]
	if !ok || !s.matches(p) {
		return nil, errors.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *FakePrincipalRepo) FindByEmail(ctx context.Context, email string) (*principals.Principal, error) {
	s, err := r.scope(ctx)
	if err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	for _, p := range r.principals {
		if s.matches(p) && strings.EqualFold(p.Email, email) {
			copied := *p
			return &copied, nil
		}
	}
	return nil, errors.ErrNotFound
}

func (r *FakePrincipalRepo) Update(ctx context.Context, p *principals.Principal) error {
	return r.mutate(ctx, p.ID, func(stored *principals.Principal) {
		stored.Email = p.Email
		stored.Phone = p.Phone
		stored.Verified = p.Verified
	})
}

func (r *FakePrincipalRepo) Delete(ctx context.Context, id string) error {
	s, err := r.scope(ctx)
	if err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	p, ok := r.principals[id]
	if !ok || !s.matches(p) {
		return errors.ErrNotFound
	}
	delete(r.principals, id)
	return nil
}

func (r *FakePrincipalRepo) MarkVerified(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(p *principals.Principal) {
		p.Verified = true
	})
}

func (r *FakePrincipalRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.mutate(ctx, id, func(p *principals.Principal) {
		p.PasswordHash = passwordHash
	})
}

func (r *FakePrincipalRepo) SetLegacyRefreshHash(ctx context.Context, id, hash string) error {
	return r.mutate(ctx, id, func(p *principals.Principal) {
		p.LegacyRefreshHash = hash
	})
}

func (r *FakePrincipalRepo) mutate(ctx context.Context, id string, fn func(p *principals.Principal)) error {
	s, err := r.scope(ctx)
	if err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	p, ok := r.principals[id]
	if !ok || !s.matches(p) {
		return errors.ErrNotFound
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}
