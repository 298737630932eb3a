// Package mail delivers one-time codes to principals.
package mail

import "context"

// Sender hands a one-time code to a delivery channel. A returned error means the code did not leave the
// process; callers surface it as errors.ErrDelivery.
type Sender interface {
	SendOTP(ctx context.Context, to, code string) error
}
