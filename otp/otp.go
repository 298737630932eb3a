// Package otp issues and verifies six-digit one-time codes.
//
// Codes are stored only as bcrypt hashes. For a given principal, kind and purpose only the newest unused,
// unexpired record can satisfy verification, and a record is consumed by the first successful verify.
package otp

import (
	"context"
	"time"

	"github.com/jrsteele09/go-identity-server/principals"
)

// Purpose names what a code is for.
type Purpose string

const (
	PurposeEmailOTP   Purpose = "email_otp"
	PurposeSMSOTP     Purpose = "sms_otp"
	PurposeAuthApp    Purpose = "auth_app"
	PurposeBackupCode Purpose = "backup_code"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailOTP, PurposeSMSOTP, PurposeAuthApp, PurposeBackupCode:
		return true
	}
	return false
}

type Record struct {
	ID            string
	TenantID      string
	PrincipalID   string
	PrincipalKind principals.Kind
	Purpose       Purpose
	CodeHash      string
	Destination   string
	ExpiresAt     time.Time
	Used          bool
	CreatedAt     time.Time
}

func (r *Record) GetTenantID() string         { return r.TenantID }
func (r *Record) SetTenantID(tenantID string) { r.TenantID = tenantID }

// Key identifies the codes that compete with each other.
type Key struct {
	PrincipalID   string
	PrincipalKind principals.Kind
	Purpose       Purpose
}

// Repo persists code records. All methods except DeleteExpired are filtered by the tenant bound to ctx.
type Repo interface {
	Create(ctx context.Context, r *Record) error
	// FindLatestActive returns the newest record for key with used = false and expires_at > now, or ErrNotFound.
	FindLatestActive(ctx context.Context, key Key, now time.Time) (*Record, error)
	// MarkUsed flips used from false to true. It returns false when another caller consumed the record first.
	MarkUsed(ctx context.Context, id string) (bool, error)
	// DeleteUsedAndExpired removes records for key that are both used and past expiry.
	DeleteUsedAndExpired(ctx context.Context, key Key, now time.Time) (int, error)
	// DeleteExpired removes every record with expires_at <= now across all tenants.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
