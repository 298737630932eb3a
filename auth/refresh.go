package auth

import (
	"context"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/telemetry"
	"github.com/jrsteele09/go-identity-server/principals"
	"github.com/jrsteele09/go-identity-server/sessions"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Authenticate verifies a bearer access token and returns its claims with ctx bound to the token's tenant.
func (is *Issuer) Authenticate(ctx context.Context, accessToken string) (*token.Claims, context.Context, error) {
	claims, err := is.tokens.ParseAccessToken(accessToken)
	if err != nil {
		return nil, ctx, err
	}
	scoped, err := is.scope(ctx, claims)
	if err != nil {
		return nil, ctx, err
	}
	revoked, err := is.revoked.IsRevoked(scoped, claims.ID)
	if err != nil {
		return nil, ctx, errors.Wrap(err, "[Issuer.Authenticate] revocation lookup")
	}
	if revoked {
		return nil, ctx, errors.Wrap(apperrors.ErrUnauthorized, "access token revoked")
	}
	return claims, scoped, nil
}

// VerifyRefresh checks a refresh token's signature and expiry, then that it is still live: against its
// session when it carries one, otherwise against the principal's legacy refresh hash.
func (is *Issuer) VerifyRefresh(ctx context.Context, refreshToken string) (*token.Claims, error) {
	claims, _, err := is.verifyRefresh(ctx, refreshToken)
	return claims, err
}

func (is *Issuer) verifyRefresh(ctx context.Context, refreshToken string) (*token.Claims, context.Context, error) {
	claims, err := is.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, ctx, err
	}
	ctx, err = is.scope(ctx, claims)
	if err != nil {
		return nil, ctx, err
	}

	if claims.SessionID != "" {
		_, ok, err := is.repos.Sessions.ValidateRefresh(ctx, claims.Subject, claims.SessionID, refreshToken)
		if err != nil {
			return nil, ctx, errors.Wrap(err, "[Issuer.VerifyRefresh]")
		}
		if !ok {
			return nil, ctx, errors.Wrap(apperrors.ErrUnauthorized, invalidRefreshMsg)
		}
		return claims, ctx, nil
	}

	p, err := is.repos.Principals.FindByID(ctx, claims.Subject)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, ctx, errors.Wrap(apperrors.ErrUnauthorized, invalidRefreshMsg)
	}
	if err != nil {
		return nil, ctx, errors.Wrap(err, "[Issuer.VerifyRefresh]")
	}
	if !is.hasher.CheckToken(p.LegacyRefreshHash, refreshToken) {
		return nil, ctx, errors.Wrap(apperrors.ErrUnauthorized, invalidRefreshMsg)
	}
	return claims, ctx, nil
}

// Refresh exchanges a live refresh token for a new access token. With rotation enabled the presented
// session is revoked and a new pair with a new session is returned instead.
func (is *Issuer) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*token.Pair, error) {
	ctx, span := is.start(ctx, "Refresh")
	defer span.End()

	claims, ctx, err := is.verifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, is.fail(span, err)
	}
	defer telemetry.GetMetrics().RefreshesTotal.Add(ctx, 1, is.kindAttr())

	if !is.rotateRefresh {
		access, _, err := is.tokens.CreateAccessToken(claims.Identity())
		if err != nil {
			return nil, is.fail(span, errors.Wrap(err, "[Issuer.Refresh]"))
		}
		return is.tokens.AccessOnly(access), nil
	}

	if err := is.consume(ctx, claims); err != nil {
		return nil, is.fail(span, err)
	}
	p, err := is.repos.Principals.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.Refresh]"))
	}
	pair, err := is.openSession(ctx, p, client)
	if err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.Refresh]"))
	}
	return pair, nil
}

// Logout revokes the access token and the session behind refreshToken. Without a refresh token, or with a
// legacy one, the principal's legacy refresh hash is cleared instead. An unreadable refresh token is ignored.
func (is *Issuer) Logout(ctx context.Context, access *token.Claims, refreshToken string) error {
	ctx, span := is.start(ctx, "Logout")
	defer span.End()

	ctx, err := is.scope(ctx, access)
	if err != nil {
		return is.fail(span, err)
	}

	refresh := &token.Claims{}
	refresh.Subject = access.Subject
	if refreshToken != "" {
		parsed, err := is.tokens.ParseRefreshToken(refreshToken)
		switch {
		case err != nil:
			log.Debug().Err(err).Str("principal_id", access.Subject).Msg("Ignoring unreadable refresh token on logout")
		case parsed.Subject != access.Subject:
			return is.fail(span, errors.Wrap(apperrors.ErrForbidden, "refresh token belongs to another principal"))
		default:
			refresh = parsed
		}
	}

	if err := is.retire(ctx, refresh); err != nil {
		return is.fail(span, errors.Wrap(err, "[Issuer.Logout]"))
	}
	if err := is.revokeAccess(ctx, access); err != nil {
		return is.fail(span, err)
	}
	log.Info().Str("principal_id", access.Subject).Str("session_id", refresh.SessionID).Msg("Logged out")
	return nil
}

// LogoutAll revokes every session of the principal in its tenant and clears its legacy refresh hash.
func (is *Issuer) LogoutAll(ctx context.Context, access *token.Claims) (int, error) {
	ctx, span := is.start(ctx, "LogoutAll")
	defer span.End()

	ctx, err := is.scope(ctx, access)
	if err != nil {
		return 0, is.fail(span, err)
	}
	n, err := is.repos.Sessions.RevokeAll(ctx, access.Subject)
	if err != nil {
		return 0, is.fail(span, errors.Wrap(err, "[Issuer.LogoutAll]"))
	}
	if err := is.repos.Principals.SetLegacyRefreshHash(ctx, access.Subject, ""); err != nil {
		return 0, is.fail(span, errors.Wrap(err, "[Issuer.LogoutAll] clear legacy hash"))
	}
	if err := is.revokeAccess(ctx, access); err != nil {
		return 0, is.fail(span, err)
	}
	return n, nil
}

// Me returns the authenticated principal.
func (is *Issuer) Me(ctx context.Context, access *token.Claims) (*principals.View, error) {
	ctx, err := is.scope(ctx, access)
	if err != nil {
		return nil, err
	}
	p, err := is.repos.Principals.FindByID(ctx, access.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Me]")
	}
	view := p.View()
	return &view, nil
}

// Sessions lists the authenticated principal's live sessions.
func (is *Issuer) Sessions(ctx context.Context, access *token.Claims) ([]sessions.View, error) {
	ctx, err := is.scope(ctx, access)
	if err != nil {
		return nil, err
	}
	return is.repos.Sessions.ListForPrincipal(ctx, access.Subject)
}

// RevokeSession revokes one of the authenticated principal's sessions.
func (is *Issuer) RevokeSession(ctx context.Context, access *token.Claims, sessionID string) error {
	ctx, err := is.scope(ctx, access)
	if err != nil {
		return err
	}
	return is.repos.Sessions.RevokeOne(ctx, access.Subject, sessionID)
}

// retire ends what a refresh token stands for: its session, or the legacy hash when it has none.
func (is *Issuer) retire(ctx context.Context, refresh *token.Claims) error {
	if refresh.SessionID != "" {
		return is.repos.Sessions.RevokeOne(ctx, refresh.Subject, refresh.SessionID)
	}
	return is.repos.Principals.SetLegacyRefreshHash(ctx, refresh.Subject, "")
}

// consume retires a refresh token being rotated. A session already revoked by a concurrent refresh
// makes the token unusable.
func (is *Issuer) consume(ctx context.Context, refresh *token.Claims) error {
	if refresh.SessionID == "" {
		return errors.Wrap(is.retire(ctx, refresh), "[Issuer.Refresh] retire")
	}
	ok, err := is.repos.Sessions.Consume(ctx, refresh.Subject, refresh.SessionID)
	if err != nil {
		return errors.Wrap(err, "[Issuer.Refresh] consume")
	}
	if !ok {
		return errors.Wrap(apperrors.ErrUnauthorized, invalidRefreshMsg)
	}
	return nil
}

func (is *Issuer) revokeAccess(ctx context.Context, access *token.Claims) error {
	if access.ID == "" || access.ExpiresAt == nil {
		return nil
	}
	if err := is.revoked.Add(ctx, access.ID, access.ExpiresAt.Time); err != nil {
		return errors.Wrap(err, "[Issuer.revokeAccess]")
	}
	return nil
}

// scope checks that claims were issued to this Issuer's kind and binds ctx to the claims' tenant.
// A tenant already bound to ctx must agree with the claims.
func (is *Issuer) scope(ctx context.Context, claims *token.Claims) (context.Context, error) {
	if claims.Kind != is.kind {
		return ctx, errors.Wrap(apperrors.ErrUnauthorized, wrongPrincipalKindMsg)
	}
	if is.kind == principals.KindDeveloper {
		if claims.TenantID != claims.Subject {
			return ctx, errors.Wrap(apperrors.ErrUnauthorized, tenantMismatchMsg)
		}
		return tenants.WithTenant(ctx, claims.Subject), nil
	}

	if claims.AppID == "" {
		return ctx, errors.Wrap(apperrors.ErrUnauthorized, tenantMismatchMsg)
	}
	if bound, err := tenants.CurrentTenant(ctx); err == nil {
		if bound != claims.TenantID || tenants.CurrentApp(ctx) != claims.AppID {
			return ctx, errors.Wrap(apperrors.ErrUnauthorized, tenantMismatchMsg)
		}
	}
	return tenants.WithApp(ctx, claims.TenantID, claims.AppID), nil
}
