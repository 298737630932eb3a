package auth

// Reasons attached to ErrUnauthorized and ErrInvalidRequest. Clients see only the sentinel's status.
const (
	invalidCredentialsMsg = "invalid credentials"
	invalidOTPMsg         = "invalid or expired code"
	invalidRefreshMsg     = "invalid refresh token"
	wrongPrincipalKindMsg = "token issued to another principal kind"
	tenantMismatchMsg     = "token issued for another tenant"
)
