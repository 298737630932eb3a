package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/jrsteele09/go-identity-server/principals"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ principals.Repo = (*PrincipalStore)(nil)

// PrincipalStore implements principals.Repo over the developers or app_users table.
//
// Developers are the tenant root, so their queries carry no tenant filter and their tenant id is their id.
// App user queries always filter by the tenant and app bound to ctx.
type PrincipalStore struct {
	pool  *pgxpool.Pool
	kind  principals.Kind
	table string
}

func NewDeveloperStore(pool *pgxpool.Pool) *PrincipalStore {
	return &PrincipalStore{pool: pool, kind: principals.KindDeveloper, table: "developers"}
}

func NewAppUserStore(pool *pgxpool.Pool) *PrincipalStore {
	return &PrincipalStore{pool: pool, kind: principals.KindAppUser, table: "app_users"}
}

type scope struct {
	tenantID string
	appID    string
}

func (s *PrincipalStore) scope(ctx context.Context) (scope, error) {
	if s.kind == principals.KindDeveloper {
		return scope{}, nil
	}
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return scope{}, err
	}
	appID := tenants.CurrentApp(ctx)
	if appID == "" {
		return scope{}, apperrors.ErrContextMissing
	}
	return scope{tenantID: tenantID, appID: appID}, nil
}

// where returns the predicate and args that confine a query to the caller's tenant and app.
// Placeholders start at $next.
func (sc scope) where(next int) (string, []any) {
	if sc.tenantID == "" {
		return "", nil
	}
	return fmt.Sprintf(" AND tenant_id = $%d AND app_id = $%d", next, next+1), []any{sc.tenantID, sc.appID}
}

func (s *PrincipalStore) columns() string {
	if s.kind == principals.KindDeveloper {
		return "id, id, NULL::uuid, email, phone, password_hash, verified, legacy_refresh_hash, created_at, updated_at"
	}
	return "id, tenant_id, app_id, email, phone, password_hash, verified, legacy_refresh_hash, created_at, updated_at"
}

func (s *PrincipalStore) Create(ctx context.Context, p *principals.Principal) error {
	sc, err := s.scope(ctx)
	if err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Kind = s.kind
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	if s.kind == principals.KindDeveloper {
		p.TenantID, p.AppID = p.ID, ""
		_, err = s.pool.Exec(ctx, `
			INSERT INTO developers (id, email, phone, password_hash, verified, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, p.Email, p.Phone, p.PasswordHash, p.Verified, p.CreatedAt, p.UpdatedAt)
	} else {
		p.TenantID, p.AppID = sc.tenantID, sc.appID
		_, err = s.pool.Exec(ctx, `
			INSERT INTO app_users (id, tenant_id, app_id, email, phone, password_hash, verified, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.ID, p.TenantID, p.AppID, p.Email, p.Phone, p.PasswordHash, p.Verified, p.CreatedAt, p.UpdatedAt)
	}
	if err != nil {
		return errors.Wrapf(mapPostgresError(err), "[PrincipalStore.Create] %s", s.table)
	}

	log.Debug().Str("principal_id", p.ID).Str("tenant_id", p.TenantID).Str("kind", string(s.kind)).Msg("Created principal")
	return nil
}

func (s *PrincipalStore) FindByID(ctx context.Context, id string) (*principals.Principal, error) {
	return s.findOne(ctx, "id = $1", id)
}

func (s *PrincipalStore) FindByEmail(ctx context.Context, email string) (*principals.Principal, error) {
	return s.findOne(ctx, "LOWER(email) = LOWER($1)", email)
}

func (s *PrincipalStore) findOne(ctx context.Context, predicate string, arg any) (*principals.Principal, error) {
	sc, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	filter, args := sc.where(2)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s%s", s.columns(), s.table, predicate, filter)

	p, err := s.scan(s.pool.QueryRow(ctx, query, append([]any{arg}, args...)...))
	if err != nil {
		return nil, errors.Wrapf(mapPostgresError(err), "[PrincipalStore.findOne] %s", s.table)
	}
	return p, nil
}

func (s *PrincipalStore) scan(row pgx.Row) (*principals.Principal, error) {
	var p principals.Principal
	var appID *string
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&appID,
		&p.Email,
		&p.Phone,
		&p.PasswordHash,
		&p.Verified,
		&p.LegacyRefreshHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.AppID = utils.Value(appID)
	p.Kind = s.kind
	return &p, nil
}

func (s *PrincipalStore) Update(ctx context.Context, p *principals.Principal) error {
	return s.exec(ctx, "Update", p.ID, "email = $2, phone = $3, verified = $4", p.Email, p.Phone, p.Verified)
}

func (s *PrincipalStore) Delete(ctx context.Context, id string) error {
	sc, err := s.scope(ctx)
	if err != nil {
		return err
	}
	filter, args := sc.where(2)
	result, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1%s", s.table, filter), append([]any{id}, args...)...)
	if err != nil {
		return errors.Wrap(mapPostgresError(err), "[PrincipalStore.Delete]")
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	log.Debug().Str("principal_id", id).Str("kind", string(s.kind)).Msg("Deleted principal")
	return nil
}

func (s *PrincipalStore) MarkVerified(ctx context.Context, id string) error {
	return s.exec(ctx, "MarkVerified", id, "verified = TRUE")
}

func (s *PrincipalStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.exec(ctx, "UpdatePassword", id, "password_hash = $2", passwordHash)
}

func (s *PrincipalStore) SetLegacyRefreshHash(ctx context.Context, id, hash string) error {
	return s.exec(ctx, "SetLegacyRefreshHash", id, "legacy_refresh_hash = $2", hash)
}

// exec runs an UPDATE of set against one row. set's placeholders start at $2; $1 is the id.
func (s *PrincipalStore) exec(ctx context.Context, op, id, set string, values ...any) error {
	sc, err := s.scope(ctx)
	if err != nil {
		return err
	}
	filter, args := sc.where(len(values) + 2)
	query := fmt.Sprintf("UPDATE %s SET %s, updated_at = NOW() WHERE id = $1%s", s.table, set, filter)

	params := append(append([]any{id}, values...), args...)
	result, err := s.pool.Exec(ctx, query, params...)
	if err != nil {
		return errors.Wrapf(mapPostgresError(err), "[PrincipalStore.%s]", op)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	log.Debug().Str("principal_id", id).Str("kind", string(s.kind)).Str("op", op).Msg("Updated principal")
	return nil
}
