package email

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/sf7293/tmanager/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMailer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	mailer, err := NewMailer(configs.MailConfig{Backend: configs.MailBackendConsole}, logger)
	require.NoError(t, err)
	assert.IsType(t, &ConsoleMailer{}, mailer)

	mailer, err = NewMailer(configs.MailConfig{Backend: configs.MailBackendSMTP, SMTPHost: "mail.example.com", SMTPPort: 25, From: "noreply@example.com", SMTPTimeOutInSeconds: 7}, logger)
	require.NoError(t, err)
	smtpMailer, ok := mailer.(*SMTPMailer)
	require.True(t, ok)
	assert.Equal(t, "mail.example.com:25", smtpMailer.config.Addr)
	assert.Nil(t, smtpMailer.auth)
	assert.Equal(t, 7*time.Second, smtpMailer.config.Timeout)

	_, err = NewMailer(configs.MailConfig{Backend: configs.MailBackendSMTP}, logger)
	assert.Error(t, err)

	_, err = NewMailer(configs.MailConfig{Backend: "carrier-pigeon"}, logger)
	assert.Error(t, err)
}
