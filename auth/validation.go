package auth

import (
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/principals"
	"github.com/pkg/errors"
)

// Validate normalises the email and checks both fields.
func (r *SignupRequest) Validate() error {
	r.Email = principals.NormalizeEmail(r.Email)
	if err := principals.ValidateEmail(r.Email); err != nil {
		return err
	}
	return principals.ValidatePassword(r.Password)
}

func (r *LoginRequest) Validate() error {
	r.Email = principals.NormalizeEmail(r.Email)
	if r.Email == "" || r.Password == "" {
		return errors.Wrap(apperrors.ErrInvalidRequest, "email and password are required")
	}
	return nil
}

func (r *OTPRequest) Validate() error {
	r.Email = principals.NormalizeEmail(r.Email)
	return principals.ValidateEmail(r.Email)
}

func (r *VerifyOTPRequest) Validate() error {
	r.Email = principals.NormalizeEmail(r.Email)
	if r.Email == "" || r.Code == "" {
		return errors.Wrap(apperrors.ErrInvalidRequest, "email and code are required")
	}
	return nil
}

func (r *ResetPasswordRequest) Validate() error {
	r.Email = principals.NormalizeEmail(r.Email)
	if r.Email == "" || r.Code == "" {
		return errors.Wrap(apperrors.ErrInvalidRequest, "email and code are required")
	}
	return principals.ValidatePassword(r.NewPassword)
}
