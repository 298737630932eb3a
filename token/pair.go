package token

import "time"

// Pair is what a successful login or OTP verification returns.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"` // access token lifetime in seconds
	RefreshExpiresAt time.Time `json:"-"`
	SessionID        string    `json:"-"`
}
