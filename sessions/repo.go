package sessions

import "context"

// Repo defines the interface for session storage operations.
// Every method is filtered by the tenant bound to ctx.
type Repo interface {
	// Create inserts a session, stamping the tenant from ctx
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by ID, revoked or not. Missing sessions return ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// FindActive retrieves a non-revoked session owned by principalID, or ErrNotFound
	FindActive(ctx context.Context, id, principalID string) (*Session, error)

	// ListActive returns the principal's non-revoked sessions, newest first
	ListActive(ctx context.Context, principalID string) ([]*Session, error)

	// Revoke marks one live session revoked. It reports false when the session was already revoked,
	// so of two concurrent callers exactly one sees true.
	Revoke(ctx context.Context, id string) (bool, error)

	// RevokeAll marks every non-revoked session of the principal revoked and returns how many changed
	RevokeAll(ctx context.Context, principalID string) (int, error)
}
