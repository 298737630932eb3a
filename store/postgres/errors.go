package postgres

import (
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/pkg/errors"
)

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return errors.Wrap(apperrors.ErrConflict, pgErr.ConstraintName)

	case pgerrcode.ForeignKeyViolation:
		// The parent row is gone or belongs to nobody this request can see.
		return errors.Wrap(apperrors.ErrNotFound, pgErr.ConstraintName)

	case pgerrcode.InvalidTextRepresentation:
		// A malformed id can never match a row.
		return apperrors.ErrNotFound

	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return errors.Wrapf(apperrors.ErrInvalidRequest, "constraint %s", pgErr.ConstraintName)

	default:
		return errors.Wrapf(err, "postgres error [%s]", pgErr.Code)
	}
}
