package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-identity-server/apps"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var _ apps.Repo = (*AppStore)(nil)

const appColumns = "id, tenant_id, name, client_id, secret_hash, redirect_uris, created_at, updated_at"

// AppStore implements apps.Repo using PostgreSQL.
type AppStore struct {
	pool *pgxpool.Pool
}

func NewAppStore(pool *pgxpool.Pool) *AppStore {
	return &AppStore{pool: pool}
}

func (s *AppStore) Create(ctx context.Context, app *apps.App) error {
	if err := tenants.Stamp(ctx, app); err != nil {
		return err
	}
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	app.CreatedAt, app.UpdatedAt = now, now
	if app.RedirectURIs == nil {
		app.RedirectURIs = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO apps (id, tenant_id, name, client_id, secret_hash, redirect_uris, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		app.ID, app.TenantID, app.Name, app.ClientID, app.SecretHash, app.RedirectURIs, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return errors.Wrap(mapPostgresError(err), "[AppStore.Create]")
	}

	log.Debug().Str("app_id", app.ID).Str("tenant_id", app.TenantID).Msg("Created app")
	return nil
}

func (s *AppStore) Get(ctx context.Context, id string) (*apps.App, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	app, err := scanApp(s.pool.QueryRow(ctx,
		"SELECT "+appColumns+" FROM apps WHERE id = $1 AND tenant_id = $2", id, tenantID))
	if err != nil {
		return nil, errors.Wrap(mapPostgresError(err), "[AppStore.Get]")
	}
	return app, nil
}

func (s *AppStore) List(ctx context.Context) ([]*apps.App, error) {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+appColumns+" FROM apps WHERE tenant_id = $1 ORDER BY created_at", tenantID)
	if err != nil {
		return nil, errors.Wrap(mapPostgresError(err), "[AppStore.List]")
	}
	defer rows.Close()

	var out []*apps.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[AppStore.List] scan")
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(mapPostgresError(err), "[AppStore.List]")
	}
	return out, nil
}

func (s *AppStore) Update(ctx context.Context, app *apps.App) error {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return err
	}
	app.UpdatedAt = time.Now().UTC()
	result, err := s.pool.Exec(ctx, `
		UPDATE apps SET name = $3, redirect_uris = $4, updated_at = $5
		WHERE id = $1 AND tenant_id = $2`,
		app.ID, tenantID, app.Name, app.RedirectURIs, app.UpdatedAt)
	if err != nil {
		return errors.Wrap(mapPostgresError(err), "[AppStore.Update]")
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	log.Debug().Str("app_id", app.ID).Msg("Updated app")
	return nil
}

func (s *AppStore) Delete(ctx context.Context, id string) error {
	tenantID, err := tenants.CurrentTenant(ctx)
	if err != nil {
		return err
	}
	result, err := s.pool.Exec(ctx, "DELETE FROM apps WHERE id = $1 AND tenant_id = $2", id, tenantID)
	if err != nil {
		return errors.Wrap(mapPostgresError(err), "[AppStore.Delete]")
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	log.Debug().Str("app_id", id).Msg("Deleted app")
	return nil
}

// FindByClientID is the one unscoped lookup: it is how an end-user request learns its tenant.
func (s *AppStore) FindByClientID(ctx context.Context, clientID string) (*apps.App, error) {
	app, err := scanApp(s.pool.QueryRow(ctx,
		"SELECT "+appColumns+" FROM apps WHERE client_id = $1", clientID))
	if err != nil {
		return nil, errors.Wrap(mapPostgresError(err), "[AppStore.FindByClientID]")
	}
	return app, nil
}

func scanApp(row pgx.Row) (*apps.App, error) {
	var app apps.App
	err := row.Scan(
		&app.ID,
		&app.TenantID,
		&app.Name,
		&app.ClientID,
		&app.SecretHash,
		&app.RedirectURIs,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &app, nil
}
