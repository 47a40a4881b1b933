package app

import "github.com/fhpereira/acesso/pkg/mail"

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// APISettings converts EmailConfig to the HTTPS mail sender representation.
func (c EmailConfig) APISettings() mail.APISettings {
	return mail.APISettings{
		Enabled:  c.API.Enabled,
		Endpoint: c.API.Endpoint,
		APIKey:   c.API.APIKey,
		From:     c.API.From,
		Timeout:  c.API.Timeout,
	}
}

// BuildMailer returns the configured outbound mailer. The HTTPS API sender
// takes precedence when both backends are enabled.
func (c EmailConfig) BuildMailer() (mail.Mailer, error) {
	if c.API.Enabled {
		return mail.NewAPIMailer(c.APISettings())
	}
	return mail.NewSMTPMailer(c.SMTPSettings())
}
