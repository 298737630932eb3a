package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/pkg/errors"
)

const bearerTokenType = "Bearer"

// Manager mints and parses access and refresh tokens.
// The two kinds are signed with different secrets so neither can stand in for the other.
type Manager struct {
	accessSigner       Signer
	refreshSigner      Signer
	issuer             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func New(accessSigner, refreshSigner Signer, options ...ManagerOption) (*Manager, error) {
	if accessSigner == nil || refreshSigner == nil {
		return nil, errors.New("[token.New] access and refresh signers are required")
	}
	m := &Manager{
		accessSigner:  accessSigner,
		refreshSigner: refreshSigner,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry <= 0 {
		m.accessTokenExpiry = 15 * time.Minute
	}
	if m.refreshTokenExpiry <= 0 {
		m.refreshTokenExpiry = 7 * 24 * time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m, nil
}

// NewHMAC builds a Manager from the two HS256 secrets.
func NewHMAC(accessSecret, refreshSecret string, options ...ManagerOption) (*Manager, error) {
	if accessSecret == refreshSecret {
		return nil, errors.New("[token.NewHMAC] access and refresh secrets must differ")
	}
	access, err := newHMACSigner(UseAccess, accessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := newHMACSigner(UseRefresh, refreshSecret)
	if err != nil {
		return nil, err
	}
	return New(access, refresh, options...)
}

func (m *Manager) AccessTokenExpiry() time.Duration  { return m.accessTokenExpiry }
func (m *Manager) RefreshTokenExpiry() time.Duration { return m.refreshTokenExpiry }

// NewSessionID returns the id a refresh token and its session share.
func NewSessionID() string {
	return uuid.New().String()
}

// CreateAccessToken signs a short-lived access token for subject.
func (m *Manager) CreateAccessToken(subject Subject) (string, *Claims, error) {
	claims := m.claims(subject, UseAccess, "", m.accessTokenExpiry)
	signed, err := m.accessSigner.Sign(claims)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Manager.CreateAccessToken]")
	}
	return signed, claims, nil
}

// CreateRefreshToken signs a long-lived refresh token. sessionID is empty only for legacy tokens.
func (m *Manager) CreateRefreshToken(subject Subject, sessionID string) (string, *Claims, error) {
	claims := m.claims(subject, UseRefresh, sessionID, m.refreshTokenExpiry)
	signed, err := m.refreshSigner.Sign(claims)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Manager.CreateRefreshToken]")
	}
	return signed, claims, nil
}

// CreatePair signs an access token and a refresh token bound to sessionID.
func (m *Manager) CreatePair(subject Subject, sessionID string) (*Pair, error) {
	access, _, err := m.CreateAccessToken(subject)
	if err != nil {
		return nil, err
	}
	refresh, refreshClaims, err := m.CreateRefreshToken(subject, sessionID)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        bearerTokenType,
		ExpiresIn:        int64(m.accessTokenExpiry.Seconds()),
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		SessionID:        sessionID,
	}, nil
}

// AccessOnly wraps a reissued access token.
func (m *Manager) AccessOnly(accessToken string) *Pair {
	return &Pair{
		AccessToken: accessToken,
		TokenType:   bearerTokenType,
		ExpiresIn:   int64(m.accessTokenExpiry.Seconds()),
	}
}

// ParseAccessToken verifies signature, issuer and expiry. Failures wrap ErrUnauthorized.
func (m *Manager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, m.accessSigner, UseAccess)
}

// ParseRefreshToken verifies signature, issuer and expiry. Failures wrap ErrUnauthorized.
func (m *Manager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, m.refreshSigner, UseRefresh)
}

func (m *Manager) claims(subject Subject, use Use, sessionID string, ttl time.Duration) *Claims {
	now := m.nowFunc()
	return &Claims{
		Email:     subject.Email,
		Role:      subject.Kind.Role(),
		Kind:      subject.Kind,
		AppID:     subject.AppID,
		TenantID:  subject.TenantID,
		SessionID: sessionID,
		Use:       use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject.PrincipalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}
}

func (m *Manager) parse(raw string, signer Signer, use Use) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signer.Method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.nowFunc),
	}
	if m.issuer != "" {
		options = append(options, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, signer.Keyfunc, options...)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrUnauthorized, "[Manager.parse] %v", err)
	}
	if !parsed.Valid || claims.Use != use || claims.Subject == "" || claims.TenantID == "" || !claims.Kind.Valid() {
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Manager.parse] malformed claims")
	}
	return claims, nil
}
