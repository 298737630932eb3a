package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/jrsteele09/go-identity-server/otp"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ otp.Repo = (*OTPStore)(nil)

// OTPStore implements otp.Repo using PostgreSQL.
type OTPStore struct {
	pool *pgxpool.Pool
}

func NewOTPStore(pool *pgxpool.Pool) *OTPStore {
	return &OTPStore{pool: pool}
}

func (s *OTPStore) Create(ctx context.Context, r *otp.Record) error {
	if err := tenants.Stamp(ctx, r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO otps (id, tenant_id, principal_id, principal_kind, purpose, code_hash, destination, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)`,
		r.ID, r.TenantID, r.PrincipalID, r.PrincipalKind, r.Purpose, r.CodeHash, utils.NilIfZero(r.Destination), r.ExpiresAt, r.CreatedAt)
	if err != nil {
		return errors.Wrap(mapPostgresError(err), "[OTPStore.Create]")
	}

	log.Debug().Str("otp_id", r.ID).Str("principal_id", r.PrincipalID).Str("purpose", string(r.Purpose)).Msg("Stored one-time code")
	return nil
}

func (s *OTPStore) FindLatestActive(ctx context.Context, key otp.Key, now time.Time) (*otp.Record, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}

	var r otp.Record
	var destination *string
	err = s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, principal_id, principal_kind, purpose, code_hash, destination, expires_at, used, created_at
		FROM otps
		WHERE tenant_id = $1 AND principal_id = $2 AND principal_kind = $3 AND purpose = $4
		  AND used = FALSE AND expires_at > $5
		ORDER BY created_at DESC
		LIMIT 1`,
		tenantID, key.PrincipalID, key.PrincipalKind, key.Purpose, now,
	).Scan(
		&r.ID,
		&r.TenantID,
		&r.PrincipalID,
		&r.PrincipalKind,
		&r.Purpose,
		&r.CodeHash,
		&destination,
		&r.ExpiresAt,
		&r.Used,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(mapPostgresError(err), "[OTPStore.FindLatestActive]")
	}
	r.Destination = utils.Value(destination)
	return &r, nil
}

// MarkUsed is a conditional update, so of two concurrent verifications only one sees a changed row.
func (s *OTPStore) MarkUsed(ctx context.Context, id string) (bool, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return false, err
	}
	result, err := s.pool.Exec(ctx,
		"UPDATE otps SET used = TRUE WHERE id = $1 AND tenant_id = $2 AND used = FALSE", id, tenantID)
	if err != nil {
		return false, errors.Wrap(mapPostgresError(err), "[OTPStore.MarkUsed]")
	}
	return result.RowsAffected() == 1, nil
}

func (s *OTPStore) DeleteUsedAndExpired(ctx context.Context, key otp.Key, now time.Time) (int, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return 0, err
	}
	result, err := s.pool.Exec(ctx, `
		DELETE FROM otps
		WHERE tenant_id = $1 AND principal_id = $2 AND principal_kind = $3 AND purpose = $4
		  AND used = TRUE AND expires_at <= $5`,
		tenantID, key.PrincipalID, key.PrincipalKind, key.Purpose, now)
	if err != nil {
		return 0, errors.Wrap(mapPostgresError(err), "[OTPStore.DeleteUsedAndExpired]")
	}
	return int(result.RowsAffected()), nil
}

func (s *OTPStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.pool.Exec(ctx, "DELETE FROM otps WHERE expires_at <= $1", now)
	if err != nil {
		return 0, errors.Wrap(mapPostgresError(err), "[OTPStore.DeleteExpired]")
	}

	n := int(result.RowsAffected())
	log.Debug().Int("count", n).Msg("Deleted expired one-time codes")
	return n, nil
}
