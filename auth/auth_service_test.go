package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-server/auth"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/security"
	"github.com/jrsteele09/go-identity-server/mail"
	"github.com/jrsteele09/go-identity-server/otp"
	otprepofake "github.com/jrsteele09/go-identity-server/otp/repofake"
	"github.com/jrsteele09/go-identity-server/principals"
	principalrepofake "github.com/jrsteele09/go-identity-server/principals/repofake"
	"github.com/jrsteele09/go-identity-server/sessions"
	sessionrepofake "github.com/jrsteele09/go-identity-server/sessions/repofake"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessSecret  = "access-secret"
	refreshSecret = "refresh-secret"
	issuer        = "com.testissuer"
	testEmail     = "john.doe@example.com"
	testPassword  = "password123"
	testTenantID  = "dev-1"
	testAppID     = "app-1"
)

var testClient = auth.ClientInfo{UserAgent: "test-agent", IP: "127.0.0.1"}

// testFixture holds all test dependencies
type testFixture struct {
	now         time.Time
	hasher      *security.Hasher
	developers  principals.Repo
	appUsers    principals.Repo
	otpRepo     *otprepofake.FakeOTPRepo
	sessionRepo *sessionrepofake.FakeSessionRepo
	sessionHook *hookedSessionRepo
	tokens      *token.Manager
	outbox      *mail.Outbox
	devIssuer   *auth.Issuer
	userIssuer  *auth.Issuer
	appCtx      context.Context
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T, options ...auth.IssuerOption) *testFixture {
	t.Helper()

	f := &testFixture{
		now:         time.Now().UTC().Truncate(time.Second),
		hasher:      security.NewHasher(bcrypt.MinCost),
		developers:  principalrepofake.NewFakePrincipalRepo(principals.KindDeveloper),
		appUsers:    principalrepofake.NewFakePrincipalRepo(principals.KindAppUser),
		otpRepo:     otprepofake.NewFakeOTPRepo(),
		sessionRepo: sessionrepofake.NewFakeSessionRepo(),
		outbox:      mail.NewOutbox(),
		appCtx:      tenants.WithApp(context.Background(), testTenantID, testAppID),
	}
	f.sessionHook = &hookedSessionRepo{FakeSessionRepo: f.sessionRepo}
	clock := func() time.Time { return f.now }

	engine, err := otp.NewEngine(f.otpRepo, f.hasher, otp.WithNowTime(clock))
	require.NoError(t, err)
	registry, err := sessions.NewRegistry(f.sessionHook, f.hasher, sessions.WithNowTime(clock))
	require.NoError(t, err)
	f.tokens, err = token.NewHMAC(accessSecret, refreshSecret,
		token.WithIssuer(issuer),
		token.WithTokenExpiry(15*time.Minute, 24*time.Hour),
		token.WithNowFunc(clock),
	)
	require.NoError(t, err)

	options = append([]auth.IssuerOption{auth.WithNowTime(clock)}, options...)
	f.devIssuer, err = auth.NewIssuer(principals.KindDeveloper,
		auth.Repos{Principals: f.developers, Sessions: registry, OTP: engine},
		f.tokens, f.outbox, f.hasher, options...)
	require.NoError(t, err)
	f.userIssuer, err = auth.NewIssuer(principals.KindAppUser,
		auth.Repos{Principals: f.appUsers, Sessions: registry, OTP: engine},
		f.tokens, f.outbox, f.hasher, options...)
	require.NoError(t, err)
	return f
}

// hookedSessionRepo lets a test pause lookups or fail revocations on the in-memory session repo.
type hookedSessionRepo struct {
	*sessionrepofake.FakeSessionRepo
	onFindActive func()
	revokeErr    error
}

func (h *hookedSessionRepo) FindActive(ctx context.Context, id, principalID string) (*sessions.Session, error) {
	if h.onFindActive != nil {
		h.onFindActive()
	}
	return h.FakeSessionRepo.FindActive(ctx, id, principalID)
}

func (h *hookedSessionRepo) Revoke(ctx context.Context, id string) (bool, error) {
	if h.revokeErr != nil {
		return false, h.revokeErr
	}
	return h.FakeSessionRepo.Revoke(ctx, id)
}

func (f *testFixture) liveSessions(principalID string) int {
	n := 0
	for _, s := range f.sessionRepo.All() {
		if s.PrincipalID == principalID && !s.Revoked {
			n++
		}
	}
	return n
}

func (f *testFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// signupDeveloper signs up and verifies a developer, returning its first token pair.
func (f *testFixture) signupDeveloper(t *testing.T, email string) (*principals.View, *token.Pair) {
	t.Helper()
	ctx := context.Background()

	view, err := f.devIssuer.Signup(ctx, auth.SignupRequest{Email: email, Password: testPassword})
	require.NoError(t, err)
	code, ok := f.outbox.LastCode(email)
	require.True(t, ok)

	pair, err := f.devIssuer.VerifyOTP(ctx, auth.VerifyOTPRequest{Email: email, Code: code}, testClient)
	require.NoError(t, err)
	return view, pair
}

func (f *testFixture) login(t *testing.T, is *auth.Issuer, ctx context.Context, email string) *token.Pair {
	t.Helper()
	pair, err := is.Login(ctx, auth.LoginRequest{Email: email, Password: testPassword}, testClient)
	require.NoError(t, err)
	return pair
}

func (f *testFixture) authenticate(t *testing.T, is *auth.Issuer, ctx context.Context, access string) *token.Claims {
	t.Helper()
	claims, _, err := is.Authenticate(ctx, access)
	require.NoError(t, err)
	return claims
}

func TestNewIssuer_RequiresDependencies(t *testing.T) {
	f := setupTestFixture(t)

	_, err := auth.NewIssuer(principals.KindDeveloper, auth.Repos{}, f.tokens, f.outbox, f.hasher)
	require.Error(t, err)

	_, err = auth.NewIssuer("admin", auth.Repos{}, f.tokens, f.outbox, f.hasher)
	require.Error(t, err)
}

func TestSignupThenVerifyOTP(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	view, err := f.devIssuer.Signup(ctx, auth.SignupRequest{Email: " John.Doe@Example.com ", Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, testEmail, view.Email)
	require.False(t, view.Verified)

	body, err := json.Marshal(view)
	require.NoError(t, err)
	require.NotContains(t, string(body), "$2a$")

	code, ok := f.outbox.LastCode(testEmail)
	require.True(t, ok)
	require.Len(t, code, 6)

	records := f.otpRepo.Records()
	require.Len(t, records, 1)
	require.Equal(t, view.ID, records[0].TenantID)
	require.NotEqual(t, code, records[0].CodeHash)

	pair, err := f.devIssuer.VerifyOTP(ctx, auth.VerifyOTPRequest{Email: testEmail, Code: code}, testClient)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	dev, err := f.developers.FindByEmail(ctx, testEmail)
	require.NoError(t, err)
	require.True(t, dev.Verified)

	stored := f.sessionRepo.All()
	require.Len(t, stored, 1)
	require.Equal(t, pair.SessionID, stored[0].ID)
	require.Equal(t, view.ID, stored[0].TenantID)
	require.Equal(t, "test-agent", stored[0].UserAgent)
	require.True(t, f.hasher.CheckToken(stored[0].RefreshHash, pair.RefreshToken))

	claims := f.authenticate(t, f.devIssuer, ctx, pair.AccessToken)
	require.Equal(t, view.ID, claims.Subject)
	require.Equal(t, view.ID, claims.TenantID)
	require.Equal(t, "developer", claims.Role)

	// The same code cannot be used twice.
	_, err = f.devIssuer.VerifyOTP(ctx, auth.VerifyOTPRequest{Email: testEmail, Code: code}, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSignup_Validation(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.devIssuer.Signup(ctx, auth.SignupRequest{Email: "not-an-email", Password: testPassword})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	_, err = f.devIssuer.Signup(ctx, auth.SignupRequest{Email: testEmail, Password: "short"})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestSignup_EmailTaken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.devIssuer.Signup(ctx, auth.SignupRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	_, err = f.devIssuer.Signup(ctx, auth.SignupRequest{Email: "JOHN.DOE@example.com", Password: testPassword})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestSignup_DeliveryFailureKeepsPrincipal(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.outbox.FailWith(fmt.Errorf("smtp down"))

	_, err := f.devIssuer.Signup(ctx, auth.SignupRequest{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, apperrors.ErrDelivery)

	dev, err := f.developers.FindByEmail(ctx, testEmail)
	require.NoError(t, err)
	require.False(t, dev.Verified)

	f.outbox.FailWith(nil)
	require.NoError(t, f.devIssuer.RequestOTP(ctx, auth.OTPRequest{Email: testEmail}))
}

func TestLogin_WrongPasswordCreatesNoSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.devIssuer.Signup(ctx, auth.SignupRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	_, err = f.devIssuer.Login(ctx, auth.LoginRequest{Email: testEmail, Password: "wrong-password"}, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = f.devIssuer.Login(ctx, auth.LoginRequest{Email: "nobody@example.com", Password: testPassword}, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.Empty(t, f.sessionRepo.All())

	pair := f.login(t, f.devIssuer, ctx, testEmail)
	require.Len(t, f.sessionRepo.All(), 1)
	require.Equal(t, pair.SessionID, f.sessionRepo.All()[0].ID)
}

func TestVerifyOTP_OnlyNewestCodeIsEligible(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.devIssuer.Signup(ctx, auth.SignupRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	first, _ := f.outbox.LastCode(testEmail)

	second := first
	for second == first {
		f.advance(time.Second)
		require.NoError(t, f.devIssuer.RequestOTP(ctx, auth.OTPRequest{Email: testEmail}))
		second, _ = f.outbox.LastCode(testEmail)
	}

	_, err = f.devIssuer.VerifyOTP(ctx, auth.VerifyOTPRequest{Email: testEmail, Code: first}, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.devIssuer.VerifyOTP(ctx, auth.VerifyOTPRequest{Email: testEmail, Code: second}, testClient)
	require.NoError(t, err)
}

func TestVerifyOTP_Expired(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.devIssuer.Signup(ctx, auth.SignupRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	code, _ := f.outbox.LastCode(testEmail)

	f.advance(otp.DefaultTTL + time.Second)
	_, err = f.devIssuer.VerifyOTP(ctx, auth.VerifyOTPRequest{Email: testEmail, Code: code}, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.Empty(t, f.sessionRepo.All())
}

func TestVerifyOTP_UnknownEmail(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.devIssuer.VerifyOTP(context.Background(), auth.VerifyOTPRequest{Email: testEmail, Code: "123456"}, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.userIssuer.VerifyOTP(f.appCtx, auth.VerifyOTPRequest{Email: testEmail, Code: "123456"}, testClient)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRequestOTP_UnknownEmail(t *testing.T) {
	f := setupTestFixture(t)

	err := f.devIssuer.RequestOTP(context.Background(), auth.OTPRequest{Email: testEmail})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Empty(t, f.outbox.Messages())
}

func TestRefresh_ReissuesAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, pair := f.signupDeveloper(t, testEmail)

	f.advance(time.Minute)
	refreshed, err := f.devIssuer.Refresh(ctx, pair.RefreshToken, testClient)
	require.NoError(t, err)
	require.Empty(t, refreshed.RefreshToken)
	require.NotEqual(t, pair.AccessToken, refreshed.AccessToken)
	f.authenticate(t, f.devIssuer, ctx, refreshed.AccessToken)

	// The refresh token stays valid until logout.
	_, err = f.devIssuer.Refresh(ctx, pair.RefreshToken, testClient)
	require.NoError(t, err)

	_, err = f.devIssuer.Refresh(ctx, pair.AccessToken, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRefresh_Expired(t *testing.T) {
	f := setupTestFixture(t)
	_, pair := f.signupDeveloper(t, testEmail)

	f.advance(25 * time.Hour)
	_, err := f.devIssuer.Refresh(context.Background(), pair.RefreshToken, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestRefresh_Rotation(t *testing.T) {
	f := setupTestFixture(t, auth.WithRefreshRotation(true))
	ctx := context.Background()
	_, pair := f.signupDeveloper(t, testEmail)

	rotated, err := f.devIssuer.Refresh(ctx, pair.RefreshToken, testClient)
	require.NoError(t, err)
	require.NotEmpty(t, rotated.RefreshToken)
	require.NotEqual(t, pair.SessionID, rotated.SessionID)

	_, err = f.devIssuer.Refresh(ctx, pair.RefreshToken, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.devIssuer.Refresh(ctx, rotated.RefreshToken, testClient)
	require.NoError(t, err)
}

func TestRefresh_RotationConcurrentReuse(t *testing.T) {
	f := setupTestFixture(t, auth.WithRefreshRotation(true))
	ctx := context.Background()
	view, pair := f.signupDeveloper(t, testEmail)

	// Both callers pass validation before either revokes.
	var arrived sync.WaitGroup
	arrived.Add(2)
	f.sessionHook.onFindActive = func() {
		arrived.Done()
		arrived.Wait()
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.devIssuer.Refresh(ctx, pair.RefreshToken, testClient)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, f.liveSessions(view.ID))
}

func TestLogout_SessionFailureKeepsAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, pair := f.signupDeveloper(t, testEmail)
	claims := f.authenticate(t, f.devIssuer, ctx, pair.AccessToken)

	f.sessionHook.revokeErr = fmt.Errorf("connection reset")
	require.Error(t, f.devIssuer.Logout(ctx, claims, pair.RefreshToken))
	f.authenticate(t, f.devIssuer, ctx, pair.AccessToken)

	f.sessionHook.revokeErr = nil
	require.NoError(t, f.devIssuer.Logout(ctx, claims, pair.RefreshToken))
	_, _, err := f.devIssuer.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestLogout_RevokesSessionAndAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, pair := f.signupDeveloper(t, testEmail)
	other := f.login(t, f.devIssuer, ctx, testEmail)

	claims := f.authenticate(t, f.devIssuer, ctx, pair.AccessToken)
	require.NoError(t, f.devIssuer.Logout(ctx, claims, pair.RefreshToken))

	_, err := f.devIssuer.Refresh(ctx, pair.RefreshToken, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, _, err = f.devIssuer.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// Other devices stay signed in.
	_, err = f.devIssuer.Refresh(ctx, other.RefreshToken, testClient)
	require.NoError(t, err)
	f.authenticate(t, f.devIssuer, ctx, other.AccessToken)
}

func TestLogout_RefreshTokenOfAnotherPrincipal(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, jane := f.signupDeveloper(t, "jane@example.com")
	_, john := f.signupDeveloper(t, testEmail)

	claims := f.authenticate(t, f.devIssuer, ctx, john.AccessToken)
	err := f.devIssuer.Logout(ctx, claims, jane.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.devIssuer.Refresh(ctx, jane.RefreshToken, testClient)
	require.NoError(t, err)
}

func TestLogoutAll(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, first := f.signupDeveloper(t, testEmail)
	second := f.login(t, f.devIssuer, ctx, testEmail)
	_, bystander := f.signupDeveloper(t, "jane@example.com")

	claims := f.authenticate(t, f.devIssuer, ctx, second.AccessToken)
	n, err := f.devIssuer.LogoutAll(ctx, claims)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, pair := range []*token.Pair{first, second} {
		_, err := f.devIssuer.Refresh(ctx, pair.RefreshToken, testClient)
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	}
	_, err = f.devIssuer.Refresh(ctx, bystander.RefreshToken, testClient)
	require.NoError(t, err)
}

func TestLegacyRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	view, pair := f.signupDeveloper(t, testEmail)

	dev, err := f.developers.FindByID(ctx, view.ID)
	require.NoError(t, err)
	legacy, claims, err := f.tokens.CreateRefreshToken(token.SubjectOf(dev), "")
	require.NoError(t, err)
	require.Empty(t, claims.SessionID)

	// Without a stored hash the token is not live.
	_, err = f.devIssuer.Refresh(ctx, legacy, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	hash, err := f.hasher.HashToken(legacy)
	require.NoError(t, err)
	require.NoError(t, f.developers.SetLegacyRefreshHash(ctx, dev.ID, hash))

	verified, err := f.devIssuer.VerifyRefresh(ctx, legacy)
	require.NoError(t, err)
	require.Equal(t, dev.ID, verified.Subject)

	refreshed, err := f.devIssuer.Refresh(ctx, legacy, testClient)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)

	access := f.authenticate(t, f.devIssuer, ctx, pair.AccessToken)
	require.NoError(t, f.devIssuer.Logout(ctx, access, legacy))

	_, err = f.devIssuer.Refresh(ctx, legacy, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	stored, err := f.developers.FindByID(ctx, dev.ID)
	require.NoError(t, err)
	require.Empty(t, stored.LegacyRefreshHash)

	// The session token was not part of the legacy logout.
	_, err = f.devIssuer.Refresh(ctx, pair.RefreshToken, testClient)
	require.NoError(t, err)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.signupDeveloper(t, testEmail)

	require.NoError(t, f.devIssuer.ForgotPassword(ctx, auth.OTPRequest{Email: testEmail}))
	code, _ := f.outbox.LastCode(testEmail)

	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}
	err := f.devIssuer.ResetPassword(ctx, auth.ResetPasswordRequest{Email: testEmail, Code: wrong, NewPassword: "new-password"})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	err = f.devIssuer.ResetPassword(ctx, auth.ResetPasswordRequest{Email: testEmail, Code: code, NewPassword: "short"})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	require.NoError(t, f.devIssuer.ResetPassword(ctx, auth.ResetPasswordRequest{Email: testEmail, Code: code, NewPassword: "new-password"}))

	_, err = f.devIssuer.Login(ctx, auth.LoginRequest{Email: testEmail, Password: testPassword}, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = f.devIssuer.Login(ctx, auth.LoginRequest{Email: testEmail, Password: "new-password"}, testClient)
	require.NoError(t, err)

	err = f.devIssuer.ForgotPassword(ctx, auth.OTPRequest{Email: "nobody@example.com"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionsAndRevokeSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, first := f.signupDeveloper(t, testEmail)
	f.advance(time.Second)
	second := f.login(t, f.devIssuer, ctx, testEmail)

	claims := f.authenticate(t, f.devIssuer, ctx, first.AccessToken)
	views, err := f.devIssuer.Sessions(ctx, claims)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, second.SessionID, views[0].ID)

	require.NoError(t, f.devIssuer.RevokeSession(ctx, claims, second.SessionID))
	_, err = f.devIssuer.Refresh(ctx, second.RefreshToken, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	views, err = f.devIssuer.Sessions(ctx, claims)
	require.NoError(t, err)
	require.Len(t, views, 1)

	// Another developer is another tenant, so the session is simply not there.
	_, jane := f.signupDeveloper(t, "jane@example.com")
	janeClaims := f.authenticate(t, f.devIssuer, ctx, jane.AccessToken)
	err = f.devIssuer.RevokeSession(ctx, janeClaims, first.SessionID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMe(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	view, pair := f.signupDeveloper(t, testEmail)

	claims := f.authenticate(t, f.devIssuer, ctx, pair.AccessToken)
	me, err := f.devIssuer.Me(ctx, claims)
	require.NoError(t, err)
	require.Equal(t, view.ID, me.ID)
	require.True(t, me.Verified)
}

func TestAppUsers_TenantIsolation(t *testing.T) {
	f := setupTestFixture(t)
	otherApp := tenants.WithApp(context.Background(), "dev-2", "app-2")

	_, err := f.userIssuer.Signup(context.Background(), auth.SignupRequest{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, apperrors.ErrContextMissing)

	view, err := f.userIssuer.Signup(f.appCtx, auth.SignupRequest{Email: testEmail, Password: testPassword, Phone: "+15550100"})
	require.NoError(t, err)
	require.Equal(t, testAppID, view.AppID)

	records := f.otpRepo.Records()
	require.Len(t, records, 1)
	require.Equal(t, testTenantID, records[0].TenantID)

	// The same email is a different account in another app.
	_, err = f.userIssuer.Login(otherApp, auth.LoginRequest{Email: testEmail, Password: testPassword}, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = f.userIssuer.Signup(otherApp, auth.SignupRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	pair := f.login(t, f.userIssuer, f.appCtx, testEmail)
	claims := f.authenticate(t, f.userIssuer, context.Background(), pair.AccessToken)
	require.Equal(t, testTenantID, claims.TenantID)
	require.Equal(t, testAppID, claims.AppID)
	require.Equal(t, "user", claims.Role)

	_, _, err = f.userIssuer.Authenticate(otherApp, pair.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = f.userIssuer.Refresh(otherApp, pair.RefreshToken, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.userIssuer.Refresh(f.appCtx, pair.RefreshToken, testClient)
	require.NoError(t, err)

	me, err := f.userIssuer.Me(context.Background(), claims)
	require.NoError(t, err)
	require.Equal(t, view.ID, me.ID)
}

func TestTokensAreBoundToPrincipalKind(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, devPair := f.signupDeveloper(t, testEmail)

	_, _, err := f.userIssuer.Authenticate(ctx, devPair.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = f.userIssuer.Refresh(ctx, devPair.RefreshToken, testClient)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.userIssuer.Signup(f.appCtx, auth.SignupRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	userPair := f.login(t, f.userIssuer, f.appCtx, testEmail)
	_, _, err = f.devIssuer.Authenticate(ctx, userPair.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestWithRevokedTokenCache(t *testing.T) {
	cache := token.NewInMemoryRevokedTokenCache()
	f := setupTestFixture(t, auth.WithRevokedTokenCache(cache))
	ctx := context.Background()
	_, pair := f.signupDeveloper(t, testEmail)

	claims := f.authenticate(t, f.devIssuer, ctx, pair.AccessToken)
	require.NoError(t, f.devIssuer.Logout(ctx, claims, ""))
	require.Equal(t, 1, cache.Len())

	revoked, err := cache.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	require.True(t, revoked)
}
