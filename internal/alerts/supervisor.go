package alerts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikoksr/notify"
	"github.com/nikoksr/notify/service/mail"

	"clearskies/internal/config"
)

// SupervisorMailer sends the e-mail copy of hold events over SMTP.
type SupervisorMailer struct {
	host       string
	port       int
	username   string
	password   string
	from       string
	recipients []string
	logger     *slog.Logger

	// newService builds the delivery service for one send.
	newService func(recipients []string) notify.Notifier
}

// NewSupervisorMailer returns a mailer for cfg, or nil when supervisor
// e-mail is not configured.
func NewSupervisorMailer(cfg config.SupervisorConfig, logger *slog.Logger) *SupervisorMailer {
	if !cfg.Enabled() {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &SupervisorMailer{
		host:       cfg.SMTPHost,
		port:       cfg.SMTPPort,
		username:   cfg.SMTPUsername,
		password:   cfg.SMTPPassword.Unmask(),
		from:       cfg.From,
		recipients: cfg.Recipients(),
		logger:     logger,
	}
	m.newService = m.mailService
	return m
}

// Recipients returns the supervisor addresses.
func (m *SupervisorMailer) Recipients() []string {
	return m.recipients
}

// Notify sends subject and body to every supervisor in one message.
func (m *SupervisorMailer) Notify(ctx context.Context, subject, body string) error {
	// A fresh service per send: mail.Mail accumulates receivers.
	n := notify.New()
	n.UseServices(m.newService(m.recipients))
	if err := n.Send(ctx, subject, body); err != nil {
		return fmt.Errorf("send supervisor e-mail: %w", err)
	}
	m.logger.InfoContext(ctx, "supervisor e-mail sent",
		"subject", subject,
		"recipients", len(m.recipients),
	)
	return nil
}

func (m *SupervisorMailer) mailService(recipients []string) notify.Notifier {
	from := m.from
	if from == "" {
		from = m.username
	}
	svc := mail.New(from, fmt.Sprintf("%s:%d", m.host, m.port))
	if m.username != "" {
		svc.AuthenticateSMTP("", m.username, m.password, m.host)
	}
	svc.AddReceivers(recipients...)
	return svc
}
