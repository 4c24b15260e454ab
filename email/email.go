package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"reclaim/config"
	"reclaim/metrics"
)

var ErrNotConfigured = errors.New("smtp is not configured")

// Mailer sends the transactional emails.
type Mailer interface {
	SendLeadWelcome(ctx context.Context, to, firstName string) error
	SendPaymentConfirmation(ctx context.Context, to, firstName string, amountCents int64, currency string) error
}

// SMTPSource supplies credentials at send time so admin edits apply without
// a restart.
type SMTPSource interface {
	SMTP(ctx context.Context) (config.SMTPConfig, error)
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService delivers mail over SMTP.
type EmailService struct {
	source SMTPSource
	domain string
	send   sendFunc
}

func NewEmailService(source SMTPSource, domain string) *EmailService {
	return &EmailService{source: source, domain: domain, send: smtp.SendMail}
}

func (e *EmailService) SendLeadWelcome(ctx context.Context, to, firstName string) error {
	subject := "Welcome to Reclaim"
	body := fmt.Sprintf(`Hi %s,

Thanks for your interest in the Reclaim program. Your free guide is on its way.

When you are ready, the seven HEALING phases are waiting for you at %s.

Reclaim
`, greetingName(firstName), e.domain)

	return e.deliver(ctx, "lead_welcome", to, subject, body)
}

func (e *EmailService) SendPaymentConfirmation(ctx context.Context, to, firstName string, amountCents int64, currency string) error {
	subject := "Your lifetime access is active"
	body := fmt.Sprintf(`Hi %s,

We received your payment of %s. You now have lifetime access to every phase.

Sign in at %s to continue where you left off.

Reclaim
`, greetingName(firstName), FormatAmount(amountCents, currency), e.domain)

	return e.deliver(ctx, "payment_confirmation", to, subject, body)
}

func (e *EmailService) deliver(ctx context.Context, kind, to, subject, body string) error {
	cfg, err := e.source.SMTP(ctx)
	if err != nil {
		metrics.EmailFailures.WithLabelValues(kind).Inc()
		return fmt.Errorf("load smtp settings: %w", err)
	}
	if cfg.Host == "" || cfg.From == "" {
		metrics.EmailFailures.WithLabelValues(kind).Inc()
		return ErrNotConfigured
	}

	message := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", cfg.From, to, subject, body)

	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)

	if err := e.send(addr, auth, cfg.From, []string{to}, []byte(message)); err != nil {
		metrics.EmailFailures.WithLabelValues(kind).Inc()
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	return nil
}

func greetingName(firstName string) string {
	if strings.TrimSpace(firstName) == "" {
		return "there"
	}
	return strings.TrimSpace(firstName)
}

// FormatAmount renders minor units, e.g. 9700 usd as "97.00 USD".
func FormatAmount(amountCents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", amountCents/100, amountCents%100, strings.ToUpper(currency))
}
