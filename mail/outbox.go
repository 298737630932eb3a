package mail

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Message is a code the Outbox accepted.
type Message struct {
	To     string
	Code   string
	SentAt time.Time
}

// Outbox keeps codes in memory instead of sending them. It backs development runs without SMTP and tests.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	failWith error
}

var _ Sender = (*Outbox)(nil)

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) SendOTP(ctx context.Context, to, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failWith != nil {
		return errors.Wrapf(apperrors.ErrDelivery, "[Outbox.SendOTP] %v", o.failWith)
	}
	o.messages = append(o.messages, Message{To: to, Code: code, SentAt: time.Now()})
	log.Info().Str("to", to).Msg("One-time code queued in outbox")
	return nil
}

// FailWith makes every later send fail with err; nil restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failWith = err
}

// LastCode returns the most recent code sent to to.
func (o *Outbox) LastCode(to string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		if o.messages[i].To == to {
			return o.messages[i].Code, true
		}
	}
	return "", false
}

func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}
