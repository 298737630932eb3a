package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/sessions"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ sessions.Repo = (*SessionStore)(nil)

const sessionColumns = `id, tenant_id, principal_id, principal_kind, user_agent, ip, refresh_hash,
	revoked, expires_at, created_at, updated_at`

// SessionStore implements sessions.Repo using PostgreSQL. Sessions are never deleted; revoked rows stay as history.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, session *sessions.Session) error {
	if err := tenants.Stamp(ctx, session); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, tenant_id, principal_id, principal_kind, user_agent, ip, refresh_hash,
			revoked, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $9, $10)`,
		session.ID,
		session.TenantID,
		session.PrincipalID,
		session.PrincipalKind,
		session.UserAgent,
		session.IP,
		session.RefreshHash,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(mapPostgresError(err), "[SessionStore.Create]")
	}

	log.Debug().
		Str("session_id", session.ID).
		Str("principal_id", session.PrincipalID).
		Str("tenant_id", session.TenantID).
		Msg("Created session")
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*sessions.Session, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	session, err := scanSession(s.pool.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = $1 AND tenant_id = $2", id, tenantID))
	if err != nil {
		return nil, errors.Wrap(mapPostgresError(err), "[SessionStore.Get]")
	}
	return session, nil
}

func (s *SessionStore) FindActive(ctx context.Context, id, principalID string) (*sessions.Session, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	session, err := scanSession(s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE id = $1 AND tenant_id = $2 AND principal_id = $3 AND revoked = FALSE`,
		id, tenantID, principalID))
	if err != nil {
		return nil, errors.Wrap(mapPostgresError(err), "[SessionStore.FindActive]")
	}
	return session, nil
}

func (s *SessionStore) ListActive(ctx context.Context, principalID string) ([]*sessions.Session, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE tenant_id = $1 AND principal_id = $2 AND revoked = FALSE
		ORDER BY created_at DESC`,
		tenantID, principalID)
	if err != nil {
		return nil, errors.Wrap(mapPostgresError(err), "[SessionStore.ListActive]")
	}
	defer rows.Close()

	var out []*sessions.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[SessionStore.ListActive] scan")
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(mapPostgresError(err), "[SessionStore.ListActive]")
	}
	return out, nil
}

func (s *SessionStore) Revoke(ctx context.Context, id string) (bool, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return false, err
	}
	result, err := s.pool.Exec(ctx,
		"UPDATE sessions SET revoked = TRUE, updated_at = NOW() WHERE id = $1 AND tenant_id = $2 AND revoked = FALSE",
		id, tenantID)
	if err != nil {
		return false, errors.Wrap(mapPostgresError(err), "[SessionStore.Revoke]")
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}
	log.Debug().Str("session_id", id).Msg("Revoked session row")
	return true, nil
}

func (s *SessionStore) RevokeAll(ctx context.Context, principalID string) (int, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return 0, err
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked = TRUE, updated_at = NOW()
		WHERE tenant_id = $1 AND principal_id = $2 AND revoked = FALSE`,
		tenantID, principalID)
	if err != nil {
		return 0, errors.Wrap(mapPostgresError(err), "[SessionStore.RevokeAll]")
	}
	return int(result.RowsAffected()), nil
}

func scanSession(row pgx.Row) (*sessions.Session, error) {
	var session sessions.Session
	err := row.Scan(
		&session.ID,
		&session.TenantID,
		&session.PrincipalID,
		&session.PrincipalKind,
		&session.UserAgent,
		&session.IP,
		&session.RefreshHash,
		&session.Revoked,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
