package server

import (
	"net/http"

	"github.com/jrsteele09/go-identity-server/auth"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	s.principalRoutes(RouteDevelopers, s.developers)
	s.principalRoutes(RouteUsers, s.users, s.RequireClient())

	// Apps belong to the developer presenting the bearer token
	devAuth := s.RequireAuth(s.developers)
	s.RegisterRouteHandler("POST "+RouteApps, ChainMiddleware(s.CreateAppHandler(), s.APIMiddleware(devAuth)...))
	s.RegisterRouteHandler("GET "+RouteApps, ChainMiddleware(s.ListAppsHandler(), s.APIMiddleware(devAuth)...))
	s.RegisterRouteHandler("GET "+RouteApp, ChainMiddleware(s.GetAppHandler(), s.APIMiddleware(devAuth)...))
	s.RegisterRouteHandler("PATCH "+RouteApp, ChainMiddleware(s.UpdateAppHandler(), s.APIMiddleware(devAuth)...))
	s.RegisterRouteHandler("DELETE "+RouteApp, ChainMiddleware(s.DeleteAppHandler(), s.APIMiddleware(devAuth)...))
}

// principalRoutes registers the credential routes for one principal kind under prefix.
// scope runs ahead of authentication; app users use it to resolve their app.
func (s *Server) principalRoutes(prefix string, is *auth.Issuer, scope ...func(http.HandlerFunc) http.HandlerFunc) {
	public := func(h http.HandlerFunc) http.Handler {
		return ChainMiddleware(h, s.APIMiddleware(scope...)...)
	}
	authed := func(h http.HandlerFunc) http.Handler {
		mw := append(append([]func(http.HandlerFunc) http.HandlerFunc{}, scope...), s.RequireAuth(is))
		return ChainMiddleware(h, s.APIMiddleware(mw...)...)
	}
	// Cookie-bearing routes also get cross-origin request protection.
	cookie := func(h http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.Handler {
		chain := append([]func(http.HandlerFunc) http.HandlerFunc{s.CSRFMiddleware}, scope...)
		return ChainMiddleware(h, s.APIMiddleware(append(chain, mw...)...)...)
	}

	s.RegisterRouteHandler("POST "+prefix+RouteSignup, public(s.SignupHandler(is)))
	s.RegisterRouteHandler("POST "+prefix+RouteRequestOTP, public(s.RequestOTPHandler(is)))
	s.RegisterRouteHandler("POST "+prefix+RouteForgotPassword, public(s.ForgotPasswordHandler(is)))
	s.RegisterRouteHandler("POST "+prefix+RouteResetPassword, public(s.ResetPasswordHandler(is)))

	s.RegisterRouteHandler("POST "+prefix+RouteLogin, cookie(s.LoginHandler(is)))
	s.RegisterRouteHandler("POST "+prefix+RouteVerifyOTP, cookie(s.VerifyOTPHandler(is)))
	s.RegisterRouteHandler("POST "+prefix+RouteRefresh, cookie(s.RefreshHandler(is)))
	s.RegisterRouteHandler("POST "+prefix+RouteLogout, cookie(s.LogoutHandler(is), s.RequireAuth(is)))
	s.RegisterRouteHandler("POST "+prefix+RouteLogoutAll, cookie(s.LogoutAllHandler(is), s.RequireAuth(is)))

	s.RegisterRouteHandler("GET "+prefix+RouteMe, authed(s.MeHandler(is)))
	s.RegisterRouteHandler("GET "+prefix+RouteSessions, authed(s.ListSessionsHandler(is)))
	s.RegisterRouteHandler("DELETE "+prefix+RouteSessions, cookie(s.LogoutAllHandler(is), s.RequireAuth(is)))
	s.RegisterRouteHandler("DELETE "+prefix+RouteSession, authed(s.RevokeSessionHandler(is)))
}
