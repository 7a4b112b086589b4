package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

// ErrPermanent marks a rejection that retrying cannot fix.
var ErrPermanent = errors.New("permanent mail rejection")

// IsPermanent reports whether err is a permanent rejection by the transport:
// either wrapped in ErrPermanent or an SMTP 5xx reply.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrPermanent) {
		return true
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 500 && protoErr.Code < 600
	}

	return false
}

const defaultSMTPTimeout = 30 * time.Second

type SMTPConfig struct {
	Addr     string
	Host     string
	Username string
	Password string
	From     string
	// Timeout bounds a whole SMTP conversation, dial included.
	Timeout time.Duration
}

type sendMailFunc func(ctx context.Context, from string, to []string, msg []byte) error

// SMTPMailer delivers through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	config   SMTPConfig
	auth     smtp.Auth
	sendMail sendMailFunc
	now      func() time.Time
}

func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultSMTPTimeout
	}

	m := &SMTPMailer{
		config: config,
		auth:   auth,
		now:    time.Now,
	}
	m.sendMail = m.deliver

	return m
}

func (m *SMTPMailer) Send(ctx context.Context, subject, body string, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrPermanent)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message := BuildMessage(m.config.From, recipients, subject, body, m.now())
	if err := m.sendMail(ctx, m.config.From, recipients, message); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}

// deliver drives one SMTP conversation within the configured timeout; ctx being
// done aborts pending I/O.
func (m *SMTPMailer) deliver(ctx context.Context, from string, to []string, msg []byte) error {
	dialer := net.Dialer{Timeout: m.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("dial SMTP server: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(m.config.Timeout)); err != nil {
		_ = conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	host := m.config.Host
	if host == "" {
		host, _, _ = net.SplitHostPort(m.config.Addr)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("greet SMTP server: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}
	if m.auth != nil {
		if ok, _ := client.Extension("AUTH"); !ok {
			return fmt.Errorf("%w: server does not support AUTH", ErrPermanent)
		}
		if err := client.Auth(m.auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

// BuildMessage renders a plain-text RFC 5322 message
func BuildMessage(from string, to []string, subject, body string, date time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")

	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// ConsoleMailer writes messages to the log instead of sending them, for local development.
type ConsoleMailer struct {
	logger *slog.Logger
}

func NewConsoleMailer(logger *slog.Logger) *ConsoleMailer {
	return &ConsoleMailer{logger: logger}
}

func (m *ConsoleMailer) Send(ctx context.Context, subject, body string, recipients []string) error {
	m.logger.InfoContext(ctx, "console mail", "subject", subject, "body", body, "recipients", recipients)
	return nil
}
