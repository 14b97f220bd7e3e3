package external

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/config"
	"subtrack/internal/types"
)

func newTestMailer(t *testing.T) *SMTPMailer {
	t.Helper()
	m, err := NewSMTPMailer(config.MailConfig{
		Host:          "smtp.example.com",
		Port:          587,
		Username:      "apikey",
		Password:      "secret",
		UseTLS:        true,
		DefaultSender: "billing@example.com",
	}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	return m
}

func TestBuildMessage(t *testing.T) {
	m := newTestMailer(t)

	msg, err := m.buildMessage(types.MailMessage{
		To:      "ada@example.com",
		Subject: "Subscription Expiry Alert",
		Body:    "Your subscription sub_123 is about to expire on 2026-09-03.",
	})
	require.NoError(t, err)

	var sb strings.Builder
	_, err = msg.WriteTo(&sb)
	require.NoError(t, err)
	raw := sb.String()

	assert.Contains(t, raw, "From: <billing@example.com>")
	assert.Contains(t, raw, "To: <ada@example.com>")
	assert.Contains(t, raw, "Subject: Subscription Expiry Alert")
	assert.Contains(t, raw, "sub_123")
}

func TestBuildMessage_InvalidRecipient(t *testing.T) {
	m := newTestMailer(t)

	_, err := m.buildMessage(types.MailMessage{
		To:      "not-an-address",
		Subject: "x",
		Body:    "y",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamMail, appErr.Code)
}
