package otprepofake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/otp"
	"github.com/jrsteele09/go-identity-server/tenants"
)

var _ otp.Repo = (*FakeOTPRepo)(nil)

type FakeOTPRepo struct {
	records map[string]*otp.Record
	lock    sync.RWMutex
}

func NewFakeOTPRepo() *FakeOTPRepo {
	return &FakeOTPRepo{
		records: make(map[string]*otp.Record),
	}
}

func (r *FakeOTPRepo) Create(ctx context.Context, record *otp.Record) error {
	if err := tenants.Stamp(ctx, record); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	copied := *record
	r.records[record.ID] = &copied
	return nil
}

func (r *FakeOTPRepo) FindLatestActive(ctx context.Context, key otp.Key, now time.Time) (*otp.Record, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	var latest *otp.Record
	for _, rec := range r.records {
		if rec.TenantID != tenantID || !matches(rec, key) || rec.Used || !rec.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, errors.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *FakeOTPRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return false, err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.TenantID != tenantID || rec.Used {
		return false, nil
	}
	rec.Used = true
	return true, nil
}

func (r *FakeOTPRepo) DeleteUsedAndExpired(ctx context.Context, key otp.Key, now time.Time) (int, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return 0, err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	n := 0
	for id, rec := range r.records {
		if rec.TenantID == tenantID && matches(rec, key) && rec.Used && !rec.ExpiresAt.After(now) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *FakeOTPRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	n := 0
	for id, rec := range r.records {
		if !rec.ExpiresAt.After(now) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (r *FakeOTPRepo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.records)
}

// Records returns copies of every stored record.
func (r *FakeOTPRepo) Records() []otp.Record {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]otp.Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

func matches(rec *otp.Record, key otp.Key) bool {
	return rec.PrincipalID == key.PrincipalID && rec.PrincipalKind == key.PrincipalKind && rec.Purpose == key.Purpose
}
