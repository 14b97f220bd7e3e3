package external

import (
	"context"
	"log/slog"

	"github.com/wneessen/go-mail"

	"subtrack/internal/config"
	"subtrack/internal/types"
)

// SMTPMailer delivers notification emails over SMTP using go-mail. It
// supports implicit SSL and STARTTLS depending on configuration, and an API
// key credential that takes precedence over a plain password.
type SMTPMailer struct {
	client *mail.Client
	sender string
	logger *slog.Logger
}

// NewSMTPMailer creates an SMTPMailer from the mail configuration. The
// underlying client dials lazily, so construction does not contact the relay.
func NewSMTPMailer(cfg config.MailConfig, logger *slog.Logger) (*SMTPMailer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.SMTPPassword().Unmask()),
		)
	}

	switch {
	case cfg.UseSSL:
		opts = append(opts, mail.WithSSL())
	case cfg.UseTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamMail,
			"failed to configure SMTP client",
			err,
		)
	}

	return &SMTPMailer{
		client: client,
		sender: cfg.DefaultSender,
		logger: logger,
	}, nil
}

// Send delivers a single plain-text message, optionally with one file
// attachment. Delivery failures are returned as AppErrors with code
// "upstream_mail_unavailable"; callers decide whether the failure is fatal.
func (m *SMTPMailer) Send(ctx context.Context, msg types.MailMessage) error {
	mm, err := m.buildMessage(msg)
	if err != nil {
		return err
	}

	if err := m.client.DialAndSendWithContext(ctx, mm); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamMail,
			"failed to deliver email via SMTP",
			err,
		)
	}

	m.logger.InfoContext(ctx, "email sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// buildMessage assembles the go-mail message from the domain MailMessage.
func (m *SMTPMailer) buildMessage(msg types.MailMessage) (*mail.Msg, error) {
	mm := mail.NewMsg()

	if err := mm.From(m.sender); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamMail,
			"invalid sender address",
			err,
		)
	}
	if err := mm.To(msg.To); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamMail,
			"invalid recipient address",
			err,
		)
	}

	mm.Subject(msg.Subject)
	mm.SetBodyString(mail.TypeTextPlain, msg.Body)

	if msg.Attachment != nil {
		mm.AttachFile(msg.Attachment.Path, mail.WithFileName(msg.Attachment.Filename))
	}

	return mm, nil
}
