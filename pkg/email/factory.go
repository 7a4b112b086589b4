package email

import (
	"fmt"
	"log/slog"

	"github.com/sf7293/tmanager/configs"
	"github.com/sf7293/tmanager/internal/domain"
)

// NewMailer picks the mail transport named by MAIL_BACKEND
func NewMailer(cfg configs.MailConfig, logger *slog.Logger) (domain.Mailer, error) {
	switch cfg.Backend {
	case configs.MailBackendSMTP:
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("SMTP_HOST must be set for the %s mail backend", configs.MailBackendSMTP)
		}
		return NewSMTPMailer(SMTPConfig{
			Addr:     cfg.SMTPAddr(),
			Host:     cfg.SMTPHost,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
			Timeout:  cfg.SMTPTimeout(),
		}), nil
	case configs.MailBackendConsole:
		return NewConsoleMailer(logger), nil
	default:
		return nil, fmt.Errorf("unrecognized mail backend %q", cfg.Backend)
	}
}
