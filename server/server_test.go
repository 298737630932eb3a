package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-identity-server/apps"
	apprepofake "github.com/jrsteele09/go-identity-server/apps/repofake"
	"github.com/jrsteele09/go-identity-server/auth"
	"github.com/jrsteele09/go-identity-server/internal/config"
	"github.com/jrsteele09/go-identity-server/internal/security"
	"github.com/jrsteele09/go-identity-server/mail"
	"github.com/jrsteele09/go-identity-server/otp"
	otprepofake "github.com/jrsteele09/go-identity-server/otp/repofake"
	"github.com/jrsteele09/go-identity-server/principals"
	principalrepofake "github.com/jrsteele09/go-identity-server/principals/repofake"
	"github.com/jrsteele09/go-identity-server/server"
	"github.com/jrsteele09/go-identity-server/sessions"
	sessionrepofake "github.com/jrsteele09/go-identity-server/sessions/repofake"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword = "password123"
	devEmail     = "dev@example.com"
	userEmail    = "user@example.com"
)

type testFixture struct {
	server *server.Server
	outbox *mail.Outbox
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("JWT_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000")

	cfg, err := config.Load()
	require.NoError(t, err)

	hasher := security.NewHasher(bcrypt.MinCost)
	engine, err := otp.NewEngine(otprepofake.NewFakeOTPRepo(), hasher)
	require.NoError(t, err)
	registry, err := sessions.NewRegistry(sessionrepofake.NewFakeSessionRepo(), hasher)
	require.NoError(t, err)
	tokens, err := token.NewHMAC(cfg.GetAccessTokenSecret(), cfg.GetRefreshTokenSecret(),
		token.WithIssuer(cfg.GetIssuer()),
		token.WithTokenExpiry(cfg.GetAccessTokenExpiry(), cfg.GetRefreshTokenExpiry()),
	)
	require.NoError(t, err)

	outbox := mail.NewOutbox()
	developers, err := auth.NewIssuer(principals.KindDeveloper,
		auth.Repos{Principals: principalrepofake.NewFakePrincipalRepo(principals.KindDeveloper), Sessions: registry, OTP: engine},
		tokens, outbox, hasher)
	require.NoError(t, err)
	users, err := auth.NewIssuer(principals.KindAppUser,
		auth.Repos{Principals: principalrepofake.NewFakePrincipalRepo(principals.KindAppUser), Sessions: registry, OTP: engine},
		tokens, outbox, hasher)
	require.NoError(t, err)

	s, err := server.New(cfg, server.Deps{
		Developers: developers,
		Users:      users,
		Apps:       apps.NewService(apprepofake.NewFakeAppRepo(), hasher),
	})
	require.NoError(t, err)

	return &testFixture{server: s, outbox: outbox}
}

type request struct {
	method   string
	path     string
	body     any
	bearer   string
	clientID string
	cookies  []*http.Cookie
	header   map[string]string
}

func (f *testFixture) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}
	r := httptest.NewRequest(req.method, req.path, &body)
	r.Header.Set("Content-Type", "application/json")
	if req.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.clientID != "" {
		r.Header.Set("X-Client-ID", req.clientID)
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}
	for k, v := range req.header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	return w
}

type accessBody struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func refreshCookieFrom(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	t.Fatalf("no refresh_token cookie in response")
	return nil
}

// signup registers and verifies a principal under prefix, returning its access token and refresh cookie.
func (f *testFixture) signup(t *testing.T, prefix, email, clientID string) (string, *http.Cookie) {
	t.Helper()
	w := f.do(t, request{method: http.MethodPost, path: prefix + "/signup", clientID: clientID,
		body: map[string]string{"email": email, "password": testPassword}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	code, ok := f.outbox.LastCode(email)
	require.True(t, ok)

	w = f.do(t, request{method: http.MethodPost, path: prefix + "/verify-otp", clientID: clientID,
		body: map[string]string{"email": email, "code": code}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[accessBody](t, w).AccessToken, refreshCookieFrom(t, w)
}

// createApp registers an app for the developer token and returns its client id.
func (f *testFixture) createApp(t *testing.T, devToken string) string {
	t.Helper()
	w := f.do(t, request{method: http.MethodPost, path: "/apps", bearer: devToken,
		body: map[string]any{"name": "Shop", "redirect_uris": []string{"https://shop.example.com/cb"}}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	require.NotEmpty(t, created["client_secret"])
	clientID, _ := created["client_id"].(string)
	require.NotEmpty(t, clientID)
	return clientID
}

func TestHealth(t *testing.T) {
	f := setupTestFixture(t)
	w := f.do(t, request{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Setenv("JWT_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = server.New(cfg, server.Deps{})
	require.Error(t, err)
}

func TestDeveloper_SignupVerifyMeRefreshLogout(t *testing.T) {
	f := setupTestFixture(t)
	access, cookie := f.signup(t, "/developers", devEmail, "")

	require.True(t, cookie.HttpOnly)
	require.Equal(t, "/", cookie.Path)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.Greater(t, cookie.MaxAge, 0)

	w := f.do(t, request{method: http.MethodGet, path: "/developers/me", bearer: access})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me := decode[principals.View](t, w)
	require.Equal(t, devEmail, me.Email)
	require.True(t, me.Verified)
	require.NotContains(t, w.Body.String(), "password")

	w = f.do(t, request{method: http.MethodPost, path: "/developers/refresh", cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	refreshed := decode[accessBody](t, w)
	require.NotEmpty(t, refreshed.AccessToken)
	require.Equal(t, "Bearer", refreshed.TokenType)

	w = f.do(t, request{method: http.MethodPost, path: "/developers/logout", bearer: access, cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cleared := refreshCookieFrom(t, w)
	require.Empty(t, cleared.Value)
	require.Less(t, cleared.MaxAge, 0)

	// Both the logged out access token and the session's refresh token are dead
	w = f.do(t, request{method: http.MethodGet, path: "/developers/me", bearer: access})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = f.do(t, request{method: http.MethodPost, path: "/developers/refresh", cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeveloper_LoginErrors(t *testing.T) {
	f := setupTestFixture(t)
	f.signup(t, "/developers", devEmail, "")

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{
			name:   "wrong password",
			body:   map[string]string{"email": devEmail, "password": "wrong-password"},
			status: http.StatusUnauthorized,
			code:   "unauthorized",
		},
		{
			name:   "unknown email",
			body:   map[string]string{"email": "nobody@example.com", "password": testPassword},
			status: http.StatusUnauthorized,
			code:   "unauthorized",
		},
		{
			name:   "invalid email",
			body:   map[string]string{"email": "not-an-email", "password": testPassword},
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
		{
			name:   "unknown field",
			body:   map[string]string{"email": devEmail, "password": testPassword, "role": "admin"},
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, request{method: http.MethodPost, path: "/developers/login", body: tt.body})
			require.Equal(t, tt.status, w.Code, w.Body.String())
			require.Equal(t, tt.code, decode[map[string]string](t, w)["error"])
			require.Empty(t, w.Result().Cookies())
		})
	}
}

func TestDeveloper_LoginSetsCookie(t *testing.T) {
	f := setupTestFixture(t)
	f.signup(t, "/developers", devEmail, "")

	w := f.do(t, request{method: http.MethodPost, path: "/developers/login",
		body:   map[string]string{"email": devEmail, "password": testPassword},
		header: map[string]string{"User-Agent": "curl/8.0"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[accessBody](t, w)
	require.NotEmpty(t, body.AccessToken)
	require.NotContains(t, w.Body.String(), "refresh_token")
	require.NotEmpty(t, refreshCookieFrom(t, w).Value)

	w = f.do(t, request{method: http.MethodGet, path: "/developers/sessions", bearer: body.AccessToken})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]sessions.View](t, w)
	require.Len(t, list, 2)
	agents := []string{list[0].UserAgent, list[1].UserAgent}
	require.Contains(t, agents, "curl/8.0")
}

func TestDeveloper_DuplicateSignup(t *testing.T) {
	f := setupTestFixture(t)
	f.signup(t, "/developers", devEmail, "")

	w := f.do(t, request{method: http.MethodPost, path: "/developers/signup",
		body: map[string]string{"email": devEmail, "password": testPassword}})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSignup_DeliveryFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.outbox.FailWith(context.DeadlineExceeded)

	w := f.do(t, request{method: http.MethodPost, path: "/developers/signup",
		body: map[string]string{"email": devEmail, "password": testPassword}})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "delivery_failed", decode[map[string]string](t, w)["error"])
}

func TestRequireAuth_RejectsMissingAndMalformed(t *testing.T) {
	f := setupTestFixture(t)

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer not-a-jwt"} {
		w := f.do(t, request{method: http.MethodGet, path: "/developers/me", header: map[string]string{"Authorization": header}})
		require.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestUsers_RequireClient(t *testing.T) {
	f := setupTestFixture(t)
	body := map[string]string{"email": userEmail, "password": testPassword}

	w := f.do(t, request{method: http.MethodPost, path: "/users/signup", body: body})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, request{method: http.MethodPost, path: "/users/signup", body: body, clientID: "no-such-client"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUsers_FullFlowAcrossApps(t *testing.T) {
	f := setupTestFixture(t)
	devToken, _ := f.signup(t, "/developers", devEmail, "")
	shop := f.createApp(t, devToken)
	blog := f.createApp(t, devToken)

	access, _ := f.signup(t, "/users", userEmail, shop)

	w := f.do(t, request{method: http.MethodGet, path: "/users/me", bearer: access, clientID: shop})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, userEmail, decode[principals.View](t, w).Email)

	// The token is bound to the app that issued it
	w = f.do(t, request{method: http.MethodGet, path: "/users/me", bearer: access, clientID: blog})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// The same email is free in another app
	w = f.do(t, request{method: http.MethodPost, path: "/users/signup", clientID: blog,
		body: map[string]string{"email": userEmail, "password": testPassword}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// A developer token is not an app user token
	w = f.do(t, request{method: http.MethodGet, path: "/users/me", bearer: devToken, clientID: shop})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUsers_Sessions(t *testing.T) {
	f := setupTestFixture(t)
	devToken, _ := f.signup(t, "/developers", devEmail, "")
	shop := f.createApp(t, devToken)
	access, first := f.signup(t, "/users", userEmail, shop)

	w := f.do(t, request{method: http.MethodPost, path: "/users/login", clientID: shop,
		body: map[string]string{"email": userEmail, "password": testPassword}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	second := refreshCookieFrom(t, w)

	w = f.do(t, request{method: http.MethodGet, path: "/users/sessions", bearer: access, clientID: shop})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]sessions.View](t, w)
	require.Len(t, list, 2)

	w = f.do(t, request{method: http.MethodDelete, path: "/users/sessions/" + list[0].ID, bearer: access, clientID: shop})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	// Exactly one of the two refresh tokens died with the revoked session
	live := 0
	for _, c := range []*http.Cookie{first, second} {
		w = f.do(t, request{method: http.MethodPost, path: "/users/refresh", clientID: shop, cookies: []*http.Cookie{c}})
		if w.Code == http.StatusOK {
			live++
		} else {
			require.Equal(t, http.StatusUnauthorized, w.Code)
		}
	}
	require.Equal(t, 1, live)

	w = f.do(t, request{method: http.MethodDelete, path: "/users/sessions/no-such-session", bearer: access, clientID: shop})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, request{method: http.MethodDelete, path: "/users/sessions", bearer: access, clientID: shop})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 1, decode[map[string]int](t, w)["revoked"])
}

func TestApps_ScopedToDeveloper(t *testing.T) {
	f := setupTestFixture(t)
	alice, _ := f.signup(t, "/developers", "alice@example.com", "")
	bob, _ := f.signup(t, "/developers", "bob@example.com", "")

	w := f.do(t, request{method: http.MethodPost, path: "/apps", bearer: alice,
		body: map[string]any{"name": "Shop", "redirect_uris": []string{"https://shop.example.com/cb"}}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	app := decode[apps.App](t, w)

	w = f.do(t, request{method: http.MethodGet, path: "/apps/" + app.ID, bearer: bob})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, request{method: http.MethodGet, path: "/apps", bearer: bob})
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decode[[]apps.App](t, w))

	w = f.do(t, request{method: http.MethodPatch, path: "/apps/" + app.ID, bearer: alice,
		body: map[string]any{"name": "Shop v2"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Shop v2", decode[apps.App](t, w).Name)
	require.NotContains(t, w.Body.String(), "client_secret")

	w = f.do(t, request{method: http.MethodDelete, path: "/apps/" + app.ID, bearer: bob})
	require.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, request{method: http.MethodDelete, path: "/apps/" + app.ID, bearer: alice})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, request{method: http.MethodPost, path: "/apps",
		body: map[string]any{"name": "Anonymous"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCrossOriginProtection(t *testing.T) {
	f := setupTestFixture(t)
	body := map[string]string{"email": devEmail, "password": testPassword}

	w := f.do(t, request{method: http.MethodPost, path: "/developers/login", body: body, header: map[string]string{
		"Origin":         "https://evil.example.com",
		"Sec-Fetch-Site": "cross-site",
	}})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := setupTestFixture(t)

	w := f.do(t, request{method: http.MethodOptions, path: "/developers/login", header: map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Content-Type",
	}})
	require.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = f.do(t, request{method: http.MethodOptions, path: "/developers/login", header: map[string]string{
		"Origin":                        "https://evil.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	}})
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestForgotAndResetPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.signup(t, "/developers", devEmail, "")

	w := f.do(t, request{method: http.MethodPost, path: "/developers/forgot-password",
		body: map[string]string{"email": devEmail}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	code, ok := f.outbox.LastCode(devEmail)
	require.True(t, ok)

	w = f.do(t, request{method: http.MethodPost, path: "/developers/reset-password",
		body: map[string]string{"email": devEmail, "code": "000000", "new_password": "new-password-1"}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, request{method: http.MethodPost, path: "/developers/reset-password",
		body: map[string]string{"email": devEmail, "code": code, "new_password": "new-password-1"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, request{method: http.MethodPost, path: "/developers/login",
		body: map[string]string{"email": devEmail, "password": "new-password-1"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestRequestOTP_UnknownEmail(t *testing.T) {
	f := setupTestFixture(t)
	w := f.do(t, request{method: http.MethodPost, path: "/developers/request-otp",
		body: map[string]string{"email": "nobody@example.com"}})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefresh_MissingCookie(t *testing.T) {
	f := setupTestFixture(t)
	w := f.do(t, request{method: http.MethodPost, path: "/developers/refresh"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	f := setupTestFixture(t)
	h := server.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, f.server.APIMiddleware()...)

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "server_error", decode[map[string]string](t, w)["error"])
}

func TestLogoutAll_RevokesEverySession(t *testing.T) {
	f := setupTestFixture(t)
	access, first := f.signup(t, "/developers", devEmail, "")

	w := f.do(t, request{method: http.MethodPost, path: "/developers/login",
		body: map[string]string{"email": devEmail, "password": testPassword}})
	require.Equal(t, http.StatusOK, w.Code)
	second := refreshCookieFrom(t, w)

	w = f.do(t, request{method: http.MethodPost, path: "/developers/logout-all", bearer: access})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 2, decode[map[string]int](t, w)["revoked"])

	for _, c := range []*http.Cookie{first, second} {
		w = f.do(t, request{method: http.MethodPost, path: "/developers/refresh", cookies: []*http.Cookie{c}})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
}
