package errors

import (
	"errors"
	"fmt"
)

// Common error types for the identity server
var (
	// Lookup errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Authentication errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")

	// ErrContextMissing means a tenant-scoped operation ran without a bound tenant.
	// It is a wiring bug, never a client error.
	ErrContextMissing = errors.New("tenant context missing")

	// ErrDelivery is returned when an OTP could not be handed to the mail transport.
	ErrDelivery = errors.New("delivery failed")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
