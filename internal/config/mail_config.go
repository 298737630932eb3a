package config

import "github.com/spf13/viper"

const (
	smtpHostVar     = "SMTP_HOST"
	smtpPortVar     = "SMTP_PORT"
	smtpAccountVar  = "SMTP_USER"
	smtpPasswordVar = "SMTP_PASS"
	smtpFromVar     = "SMTP_FROM"
)

type MailConfig interface {
	GetSmtpHost() string
	GetSmtpPort() string
	GetSmtpAccount() string
	GetSmtpPassword() string
	GetSmtpFrom() string
}

type Mail struct {
	v *viper.Viper
}

var _ MailConfig = Mail{}

func (m Mail) GetSmtpHost() string {
	return m.v.GetString(smtpHostVar)
}

func (m Mail) GetSmtpPort() string {
	return m.v.GetString(smtpPortVar)
}

func (m Mail) GetSmtpAccount() string {
	return m.v.GetString(smtpAccountVar)
}

func (m Mail) GetSmtpPassword() string {
	return m.v.GetString(smtpPasswordVar)
}

// GetSmtpFrom falls back to the account name when no sender address is configured.
func (m Mail) GetSmtpFrom() string {
	if from := m.v.GetString(smtpFromVar); from != "" {
		return from
	}
	return m.GetSmtpAccount()
}
