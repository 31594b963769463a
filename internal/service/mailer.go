package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/gymrank/internal/config"
)

// Mailer sends transactional email
type Mailer interface {
	SendPasswordReset(ctx context.Context, toEmail, username, resetURL string) error
}

// ResendMailer sends email through the Resend API
type ResendMailer struct {
	client *resend.Client
	from   string
	logger *slog.Logger
}

// NewResendMailer creates a Resend-backed mailer
func NewResendMailer(cfg *config.EmailConfig, logger *slog.Logger) *ResendMailer {
	return &ResendMailer{
		client: resend.NewClient(cfg.APIKey),
		from:   cfg.From,
		logger: logger,
	}
}

// SendPasswordReset emails a password reset link
func (m *ResendMailer) SendPasswordReset(ctx context.Context, toEmail, username, resetURL string) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{toEmail},
		Subject: "Reset your GymRank password",
		Html: fmt.Sprintf(
			`<p>Hi %s,</p>
<p>Someone requested a password reset for your GymRank account.
If that was you, follow the link below within the next hour:</p>
<p><a href="%s">Reset password</a></p>
<p>If you did not request this, you can ignore this email.</p>`,
			username, resetURL,
		),
	}

	sent, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("sending reset email: %w", err)
	}
	m.logger.Debug("reset email sent", "email_id", sent.Id)
	return nil
}
