package principals

import (
	"net/mail"
	"strings"

	"github.com/jrsteele09/go-identity-server/internal/errors"
)

const MinPasswordLength = 8

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.Wrapf(errors.ErrInvalidRequest, "email %q is not a valid address", email)
	}
	return nil
}

// ValidatePassword enforces the minimum length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.Wrapf(errors.ErrInvalidRequest, "password must be at least %d characters long", MinPasswordLength)
	}
	return nil
}
