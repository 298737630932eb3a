package server

// Route path constants
// Principal routes are registered twice, under RouteDevelopers and RouteUsers.
const (
	RouteDevelopers = "/developers"
	RouteUsers      = "/users"

	// Credential routes, relative to the principal prefix
	RouteSignup         = "/signup"
	RouteLogin          = "/login"
	RouteRequestOTP     = "/request-otp"
	RouteVerifyOTP      = "/verify-otp"
	RouteRefresh        = "/refresh"
	RouteLogout         = "/logout"
	RouteLogoutAll      = "/logout-all"
	RouteForgotPassword = "/forgot-password"
	RouteResetPassword  = "/reset-password"
	RouteMe             = "/me"
	RouteSessions       = "/sessions"
	RouteSession        = "/sessions/{id}"

	// App management, developer bearer token required
	RouteApps = "/apps"
	RouteApp  = "/apps/{id}"

	RouteHealth = "/healthz"
)

const (
	refreshCookieName = "refresh_token"
	clientIDHeader    = "X-Client-ID"
)
