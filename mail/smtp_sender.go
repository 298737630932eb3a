package mail

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jrsteele09/go-identity-server/internal/config"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	gomail "github.com/wneessen/go-mail"
)

const (
	otpSubject  = "Your One-Time Authentication Code"
	implicitTLS = 465
)

// SendFunc delivers a built message. The default dials the configured server with ctx.
type SendFunc func(ctx context.Context, msg *gomail.Msg) error

// SMTPSender sends codes as plain text email over SMTP. Port 465 uses implicit TLS, any other port
// must offer STARTTLS. PLAIN auth is used when an account is configured.
type SMTPSender struct {
	from   string
	expiry time.Duration
	send   SendFunc
}

type SMTPOption func(*SMTPSender)

// WithSendFunc replaces the transport (primarily for testing)
func WithSendFunc(send SendFunc) SMTPOption {
	return func(s *SMTPSender) {
		s.send = send
	}
}

// NewSMTPSender builds a sender from mail config. expiry is quoted in the message body.
func NewSMTPSender(cfg config.MailConfig, expiry time.Duration, options ...SMTPOption) (*SMTPSender, error) {
	if cfg.GetSmtpHost() == "" || cfg.GetSmtpFrom() == "" {
		return nil, errors.New("[mail.NewSMTPSender] SMTP_HOST and SMTP_FROM (or SMTP_USER) are required")
	}
	port, err := strconv.Atoi(cfg.GetSmtpPort())
	if err != nil {
		return nil, errors.Wrapf(err, "[mail.NewSMTPSender] SMTP_PORT %q", cfg.GetSmtpPort())
	}
	if err := gomail.NewMsg().From(cfg.GetSmtpFrom()); err != nil {
		return nil, errors.Wrap(err, "[mail.NewSMTPSender] SMTP_FROM")
	}

	clientOptions := []gomail.Option{gomail.WithPort(port)}
	if port == implicitTLS {
		clientOptions = append(clientOptions, gomail.WithSSL())
	} else {
		clientOptions = append(clientOptions, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}
	if account := cfg.GetSmtpAccount(); account != "" {
		clientOptions = append(clientOptions,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(account),
			gomail.WithPassword(cfg.GetSmtpPassword()),
		)
	}
	host := cfg.GetSmtpHost()
	if _, err := gomail.NewClient(host, clientOptions...); err != nil {
		return nil, errors.Wrap(err, "[mail.NewSMTPSender] client")
	}

	s := &SMTPSender{
		from:   cfg.GetSmtpFrom(),
		expiry: expiry,
		// A Client holds one connection, so each message gets its own.
		send: func(ctx context.Context, msg *gomail.Msg) error {
			client, err := gomail.NewClient(host, clientOptions...)
			if err != nil {
				return err
			}
			return client.DialAndSendWithContext(ctx, msg)
		},
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *SMTPSender) SendOTP(ctx context.Context, to, code string) error {
	msg, err := s.message(to, code)
	if err != nil {
		return errors.Wrapf(apperrors.ErrDelivery, "[SMTPSender.SendOTP] %v", err)
	}
	if err := s.send(ctx, msg); err != nil {
		log.Error().Err(err).Str("to", to).Msg("Failed to send one-time code email")
		return errors.Wrapf(apperrors.ErrDelivery, "[SMTPSender.SendOTP] %v", err)
	}

	log.Debug().Str("to", to).Msg("Sent one-time code email")
	return nil
}

func (s *SMTPSender) message(to, code string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, errors.Wrap(err, "sender")
	}
	if err := msg.To(to); err != nil {
		return nil, errors.Wrap(err, "recipient")
	}
	msg.Subject(otpSubject)
	msg.SetBodyString(gomail.TypeTextPlain,
		fmt.Sprintf("Your verification code is %s. It will expire in %d minutes.", code, int(s.expiry.Minutes())))
	return msg, nil
}
