package sessionrepofake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/sessions"
	"github.com/jrsteele09/go-identity-server/tenants"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string]*sessions.Session
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
	}
}

func (sr *FakeSessionRepo) Create(ctx context.Context, s *sessions.Session) error {
	if err := tenants.Stamp(ctx, s); err != nil {
		return err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.sessions[s.ID]; ok {
		return errors.Wrapf(errors.ErrConflict, "session %s", s.ID)
	}
	copied := *s
	sr.sessions[s.ID] = &copied
	return nil
}

func (sr *FakeSessionRepo) Get(ctx context.Context, id string) (*sessions.Session, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	s, ok := sr.sessions[id]
	if !ok || s.TenantID != tenantID {
		return nil, errors.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (sr *FakeSessionRepo) FindActive(ctx context.Context, id, principalID string) (*sessions.Session, error) {
	s, err := sr.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Revoked || s.PrincipalID != principalID {
		return nil, errors.ErrNotFound
	}
	return s, nil
}

func (sr *FakeSessionRepo) ListActive(ctx context.Context, principalID string) ([]*sessions.Session, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	var out []*sessions.Session
	for _, s := range sr.sessions {
		if s.TenantID == tenantID && s.PrincipalID == principalID && !s.Revoked {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (sr *FakeSessionRepo) Revoke(ctx context.Context, id string) (bool, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return false, err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	s, ok := sr.sessions[id]
	if !ok || s.TenantID != tenantID || s.Revoked {
		return false, nil
	}
	s.Revoked = true
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (sr *FakeSessionRepo) RevokeAll(ctx context.Context, principalID string) (int, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return 0, err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	n := 0
	for _, s := range sr.sessions {
		if s.TenantID == tenantID && s.PrincipalID == principalID && !s.Revoked {
			s.Revoked = true
			s.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// All returns copies of every stored session, revoked ones included.
func (sr *FakeSessionRepo) All() []sessions.Session {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	out := make([]sessions.Session, 0, len(sr.sessions))
	for _, s := range sr.sessions {
		out = append(out, *s)
	}
	return out
}
