package auth

// SignupRequest is the body of a signup call.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

// LoginRequest is the body of a password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OTPRequest asks for a code to be sent to Email.
type OTPRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest exchanges a code for a token pair.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ResetPasswordRequest sets a new password using an emailed code.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// ClientInfo describes the device a session is opened from.
type ClientInfo struct {
	UserAgent string
	IP        string
}
