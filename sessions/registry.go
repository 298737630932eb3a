package sessions

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/security"
	"github.com/jrsteele09/go-identity-server/internal/telemetry"
	"github.com/jrsteele09/go-identity-server/principals"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NewSession is what the issuer knows when it mints a refresh token.
// ID must be the sid already embedded in RefreshToken.
type NewSession struct {
	ID            string
	PrincipalID   string
	PrincipalKind principals.Kind
	RefreshToken  string
	UserAgent     string
	IP            string
	ExpiresAt     time.Time
}

type Registry struct {
	repo    Repo
	hasher  *security.Hasher
	nowTime func() time.Time
}

type RegistryOption func(*Registry)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowFunc
	}
}

func NewRegistry(repo Repo, hasher *security.Hasher, options ...RegistryOption) (*Registry, error) {
	if repo == nil {
		return nil, errors.New("[sessions.NewRegistry] repo is required")
	}
	if hasher == nil {
		return nil, errors.New("[sessions.NewRegistry] hasher is required")
	}
	r := &Registry{repo: repo, hasher: hasher, nowTime: time.Now}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Create records a freshly issued refresh token.
func (r *Registry) Create(ctx context.Context, ns NewSession) (*Session, error) {
	if ns.ID == "" || ns.PrincipalID == "" || ns.RefreshToken == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[Registry.Create] id, principal and refresh token are required")
	}
	hash, err := r.hasher.HashToken(ns.RefreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.Create] hash refresh token")
	}

	now := r.nowTime()
	s := &Session{
		ID:            ns.ID,
		PrincipalID:   ns.PrincipalID,
		PrincipalKind: ns.PrincipalKind,
		UserAgent:     ns.UserAgent,
		IP:            ns.IP,
		RefreshHash:   hash,
		ExpiresAt:     ns.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return nil, errors.Wrap(err, "[Registry.Create]")
	}

	telemetry.GetMetrics().SessionsCreatedTotal.Add(ctx, 1)
	return s, nil
}

// ListForPrincipal returns the principal's non-revoked sessions without their hashes.
func (r *Registry) ListForPrincipal(ctx context.Context, principalID string) ([]View, error) {
	rows, err := r.repo.ListActive(ctx, principalID)
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.ListForPrincipal]")
	}
	views := make([]View, 0, len(rows))
	for _, s := range rows {
		views = append(views, s.View())
	}
	return views, nil
}

// RevokeOne revokes sessionID on behalf of principalID.
// It returns ErrNotFound when the session does not exist in this tenant and ErrForbidden when another principal owns it.
// Revoking an already revoked session succeeds.
func (r *Registry) RevokeOne(ctx context.Context, principalID, sessionID string) error {
	_, err := r.Consume(ctx, principalID, sessionID)
	return err
}

// Consume revokes sessionID like RevokeOne and reports whether this call was the one that revoked it.
// Of two concurrent calls for one live session, exactly one reports true.
func (r *Registry) Consume(ctx context.Context, principalID, sessionID string) (bool, error) {
	s, err := r.repo.Get(ctx, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "[Registry.Consume]")
	}
	if s.PrincipalID != principalID {
		return false, errors.Wrap(apperrors.ErrForbidden, "[Registry.Consume] session belongs to another principal")
	}
	revoked, err := r.repo.Revoke(ctx, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "[Registry.Consume]")
	}
	if !revoked {
		return false, nil
	}

	telemetry.GetMetrics().SessionsRevokedTotal.Add(ctx, 1)
	log.Debug().Str("session_id", sessionID).Str("principal_id", principalID).Msg("Revoked session")
	return true, nil
}

// RevokeAll revokes every session the principal holds in the current tenant.
func (r *Registry) RevokeAll(ctx context.Context, principalID string) (int, error) {
	n, err := r.repo.RevokeAll(ctx, principalID)
	if err != nil {
		return 0, errors.Wrap(err, "[Registry.RevokeAll]")
	}

	telemetry.GetMetrics().SessionsRevokedTotal.Add(ctx, int64(n))
	log.Debug().Int("count", n).Str("principal_id", principalID).Msg("Revoked all sessions")
	return n, nil
}

// ValidateRefresh is the only check that deems a refresh token live.
// It is false for an absent, revoked, expired or foreign session and for a token that does not match the stored hash.
func (r *Registry) ValidateRefresh(ctx context.Context, principalID, sessionID, presented string) (*Session, bool, error) {
	s, err := r.repo.FindActive(ctx, sessionID, principalID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "[Registry.ValidateRefresh]")
	}
	if s.ExpiresAt.Before(r.nowTime()) {
		return nil, false, nil
	}
	if !r.hasher.CheckToken(s.RefreshHash, presented) {
		return nil, false, nil
	}
	return s, true, nil
}
