// Package auth issues credentials for developers and app users: signup, OTP verification, password login,
// token refresh and logout.
package auth

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/security"
	"github.com/jrsteele09/go-identity-server/internal/telemetry"
	"github.com/jrsteele09/go-identity-server/mail"
	"github.com/jrsteele09/go-identity-server/otp"
	"github.com/jrsteele09/go-identity-server/principals"
	"github.com/jrsteele09/go-identity-server/sessions"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Issuer runs the credential flows for one principal kind.
//
// Developer flows need nothing bound to ctx: a developer is its own tenant, so the Issuer binds the tenant
// once the developer is known. App user flows need the tenant and app bound by the caller (tenants.WithApp).
type Issuer struct {
	kind          principals.Kind
	repos         Repos
	tokens        *token.Manager
	sender        mail.Sender
	hasher        *security.Hasher
	revoked       token.RevokedTokenCache
	rotateRefresh bool
	nowTime       func() time.Time
}

type IssuerOption func(*Issuer)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) IssuerOption {
	return func(is *Issuer) {
		is.nowTime = nowFunc
	}
}

// WithRefreshRotation makes Refresh revoke the presented session and issue a new pair.
func WithRefreshRotation(rotate bool) IssuerOption {
	return func(is *Issuer) {
		is.rotateRefresh = rotate
	}
}

// WithRevokedTokenCache replaces the in-memory revoked access token cache.
func WithRevokedTokenCache(cache token.RevokedTokenCache) IssuerOption {
	return func(is *Issuer) {
		is.revoked = cache
	}
}

// NewIssuer builds an Issuer for kind. Optional configuration can be provided via options.
func NewIssuer(
	kind principals.Kind,
	repos Repos,
	tokens *token.Manager,
	sender mail.Sender,
	hasher *security.Hasher,
	options ...IssuerOption,
) (*Issuer, error) {
	if !kind.Valid() {
		return nil, errors.Errorf("[auth.NewIssuer] unknown principal kind %q", kind)
	}
	if repos.Principals == nil {
		return nil, errors.New("[auth.NewIssuer] Principals repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[auth.NewIssuer] Sessions registry is required")
	}
	if repos.OTP == nil {
		return nil, errors.New("[auth.NewIssuer] OTP engine is required")
	}
	if tokens == nil {
		return nil, errors.New("[auth.NewIssuer] token manager is required")
	}
	if sender == nil {
		return nil, errors.New("[auth.NewIssuer] mail sender is required")
	}
	if hasher == nil {
		return nil, errors.New("[auth.NewIssuer] hasher is required")
	}

	is := &Issuer{
		kind:    kind,
		repos:   repos,
		tokens:  tokens,
		sender:  sender,
		hasher:  hasher,
		revoked: token.NewInMemoryRevokedTokenCache(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(is)
	}
	return is, nil
}

func (is *Issuer) Kind() principals.Kind {
	return is.kind
}

// Signup creates an unverified principal and emails it a verification code.
// If delivery fails the principal is kept and the caller can ask for another code.
func (is *Issuer) Signup(ctx context.Context, req SignupRequest) (*principals.View, error) {
	ctx, span := is.start(ctx, "Signup")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, is.fail(span, err)
	}
	hash, err := is.hasher.Hash(req.Password)
	if err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.Signup] hash password"))
	}

	p := &principals.Principal{
		Kind:         is.kind,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
	}
	if err := is.repos.Principals.Create(ctx, p); err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.Signup] create"))
	}
	log.Info().Str("principal_id", p.ID).Str("kind", string(is.kind)).Str("tenant_id", p.TenantID).Msg("Principal signed up")

	if err := is.sendCode(is.bind(ctx, p), p, otp.PurposeEmailOTP); err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.Signup]"))
	}

	view := p.View()
	return &view, nil
}

// RequestOTP emails a fresh code to an existing principal.
func (is *Issuer) RequestOTP(ctx context.Context, req OTPRequest) error {
	ctx, span := is.start(ctx, "RequestOTP")
	defer span.End()

	if err := req.Validate(); err != nil {
		return is.fail(span, err)
	}
	p, err := is.repos.Principals.FindByEmail(ctx, req.Email)
	if err != nil {
		return is.fail(span, errors.Wrap(err, "[Issuer.RequestOTP]"))
	}
	if err := is.sendCode(is.bind(ctx, p), p, otp.PurposeEmailOTP); err != nil {
		return is.fail(span, errors.Wrap(err, "[Issuer.RequestOTP]"))
	}
	return nil
}

// VerifyOTP consumes an email code, marks the principal verified and opens a session.
// An unknown developer email is reported as unauthorized; an unknown app user email as not found.
func (is *Issuer) VerifyOTP(ctx context.Context, req VerifyOTPRequest, client ClientInfo) (*token.Pair, error) {
	ctx, span := is.start(ctx, "VerifyOTP")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, is.fail(span, err)
	}
	p, err := is.repos.Principals.FindByEmail(ctx, req.Email)
	if errors.Is(err, apperrors.ErrNotFound) && is.kind == principals.KindDeveloper {
		is.loginFailed(ctx)
		return nil, is.fail(span, errors.Wrap(apperrors.ErrUnauthorized, invalidCredentialsMsg))
	}
	if err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.VerifyOTP]"))
	}

	ctx = is.bind(ctx, p)
	ok, err := is.repos.OTP.Verify(ctx, p.ID, p.Kind, otp.PurposeEmailOTP, req.Code)
	if err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.VerifyOTP]"))
	}
	if !ok {
		is.loginFailed(ctx)
		return nil, is.fail(span, errors.Wrap(apperrors.ErrUnauthorized, invalidOTPMsg))
	}

	if err := is.repos.Principals.MarkVerified(ctx, p.ID); err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.VerifyOTP] mark verified"))
	}
	p.Verified = true

	pair, err := is.openSession(ctx, p, client)
	if err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.VerifyOTP]"))
	}
	is.loggedIn(ctx)
	return pair, nil
}

// Login checks a password and opens a session. A failed login never creates a session.
func (is *Issuer) Login(ctx context.Context, req LoginRequest, client ClientInfo) (*token.Pair, error) {
	ctx, span := is.start(ctx, "Login")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, is.fail(span, err)
	}
	p, err := is.repos.Principals.FindByEmail(ctx, req.Email)
	if errors.Is(err, apperrors.ErrNotFound) {
		is.loginFailed(ctx)
		return nil, is.fail(span, errors.Wrap(apperrors.ErrUnauthorized, invalidCredentialsMsg))
	}
	if err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.Login]"))
	}
	if !is.hasher.Check(p.PasswordHash, req.Password) {
		is.loginFailed(ctx)
		log.Debug().Str("principal_id", p.ID).Msg("Password mismatch")
		return nil, is.fail(span, errors.Wrap(apperrors.ErrUnauthorized, invalidCredentialsMsg))
	}

	pair, err := is.openSession(is.bind(ctx, p), p, client)
	if err != nil {
		return nil, is.fail(span, errors.Wrap(err, "[Issuer.Login]"))
	}
	is.loggedIn(ctx)
	return pair, nil
}

// ForgotPassword emails a code that ResetPassword accepts.
func (is *Issuer) ForgotPassword(ctx context.Context, req OTPRequest) error {
	ctx, span := is.start(ctx, "ForgotPassword")
	defer span.End()

	if err := req.Validate(); err != nil {
		return is.fail(span, err)
	}
	p, err := is.repos.Principals.FindByEmail(ctx, req.Email)
	if err != nil {
		return is.fail(span, errors.Wrap(err, "[Issuer.ForgotPassword]"))
	}
	if err := is.sendCode(is.bind(ctx, p), p, otp.PurposeEmailOTP); err != nil {
		return is.fail(span, errors.Wrap(err, "[Issuer.ForgotPassword]"))
	}
	return nil
}

// ResetPassword consumes a code and replaces the password. A bad code is an invalid request, not an auth failure.
func (is *Issuer) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	ctx, span := is.start(ctx, "ResetPassword")
	defer span.End()

	if err := req.Validate(); err != nil {
		return is.fail(span, err)
	}
	p, err := is.repos.Principals.FindByEmail(ctx, req.Email)
	if err != nil {
		return is.fail(span, errors.Wrap(err, "[Issuer.ResetPassword]"))
	}

	ctx = is.bind(ctx, p)
	ok, err := is.repos.OTP.Verify(ctx, p.ID, p.Kind, otp.PurposeEmailOTP, req.Code)
	if err != nil {
		return is.fail(span, errors.Wrap(err, "[Issuer.ResetPassword]"))
	}
	if !ok {
		return is.fail(span, errors.Wrap(apperrors.ErrInvalidRequest, invalidOTPMsg))
	}

	hash, err := is.hasher.Hash(req.NewPassword)
	if err != nil {
		return is.fail(span, errors.Wrap(err, "[Issuer.ResetPassword] hash password"))
	}
	if err := is.repos.Principals.UpdatePassword(ctx, p.ID, hash); err != nil {
		return is.fail(span, errors.Wrap(err, "[Issuer.ResetPassword]"))
	}
	log.Info().Str("principal_id", p.ID).Msg("Password reset")
	return nil
}

// openSession mints a pair and records the refresh token's hash under the pair's session id.
func (is *Issuer) openSession(ctx context.Context, p *principals.Principal, client ClientInfo) (*token.Pair, error) {
	sid := token.NewSessionID()
	pair, err := is.tokens.CreatePair(token.SubjectOf(p), sid)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.openSession] sign")
	}
	_, err = is.repos.Sessions.Create(ctx, sessions.NewSession{
		ID:            sid,
		PrincipalID:   p.ID,
		PrincipalKind: p.Kind,
		RefreshToken:  pair.RefreshToken,
		UserAgent:     client.UserAgent,
		IP:            client.IP,
		ExpiresAt:     pair.RefreshExpiresAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.openSession] persist")
	}
	log.Debug().Str("principal_id", p.ID).Str("session_id", sid).Msg("Opened session")
	return pair, nil
}

func (is *Issuer) sendCode(ctx context.Context, p *principals.Principal, purpose otp.Purpose) error {
	code, err := is.repos.OTP.Generate(ctx, p.ID, p.Kind, purpose, p.Email)
	if err != nil {
		return errors.Wrap(err, "generate code")
	}
	if err := is.sender.SendOTP(ctx, p.Email, code); err != nil {
		if !errors.Is(err, apperrors.ErrDelivery) {
			err = errors.Wrap(apperrors.ErrDelivery, err.Error())
		}
		return err
	}
	return nil
}

// bind scopes ctx to the rows p owns.
func (is *Issuer) bind(ctx context.Context, p *principals.Principal) context.Context {
	if p.Kind == principals.KindDeveloper {
		return tenants.WithTenant(ctx, p.ID)
	}
	return tenants.WithApp(ctx, p.TenantID, p.AppID)
}

func (is *Issuer) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, "auth.Issuer."+op,
		trace.WithAttributes(attribute.String("principal.kind", string(is.kind))))
}

func (is *Issuer) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "failed")
	return err
}

func (is *Issuer) loggedIn(ctx context.Context) {
	telemetry.GetMetrics().LoginsTotal.Add(ctx, 1, is.kindAttr())
}

func (is *Issuer) loginFailed(ctx context.Context) {
	telemetry.GetMetrics().LoginFailuresTotal.Add(ctx, 1, is.kindAttr())
}

func (is *Issuer) kindAttr() metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", string(is.kind)))
}
