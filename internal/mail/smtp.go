package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/habitcell/server/internal/recovery"
	"gopkg.in/gomail.v2"
)

const verificationSubject = "[HabitCell] Backup recovery code"

// dialSender is satisfied by *gomail.Dialer
type dialSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers verification codes through an SMTP relay
type SMTPSender struct {
	dialer   dialSender
	from     string
	fromName string
	logger   *slog.Logger
}

// NewSMTPSender creates a sender that authenticates with user/password when user is set.
// gomail upgrades to STARTTLS when the server offers it.
func NewSMTPSender(host string, port int, user, password, fromEmail, fromName string, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		dialer:   gomail.NewDialer(host, port, user, password),
		from:     fromEmail,
		fromName: fromName,
		logger:   logger,
	}
}

// SendVerificationCode sends a multipart text/HTML message carrying code
func (s *SMTPSender) SendVerificationCode(ctx context.Context, toEmail, code string, expiresMinutes int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := s.buildMessage(toEmail, code, expiresMinutes)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.InfoContext(ctx, "verification email sent", "to", recovery.MaskEmail(toEmail))
	return nil
}

func (s *SMTPSender) buildMessage(toEmail, code string, expiresMinutes int) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", verificationSubject)
	m.SetBody("text/plain", textBody(code, expiresMinutes))
	m.AddAlternative("text/html", htmlBody(code, expiresMinutes))
	return m
}

func textBody(code string, expiresMinutes int) string {
	return fmt.Sprintf(`HabitCell backup recovery

Use this code to link your email to this device:

    %s

The code is valid for %d minutes.

If you did not request this, you can ignore this email.
`, code, expiresMinutes)
}

func htmlBody(code string, expiresMinutes int) string {
	return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<h2 style="color: #212121;">HabitCell backup recovery</h2>
		<p>Use this code to link your email to this device:</p>
		<div style="background-color: #f5f5f5; padding: 20px; text-align: center; margin: 20px 0; border-radius: 8px;">
			<h1 style="color: #212121; margin: 0; font-size: 32px; letter-spacing: 5px;">%s</h1>
		</div>
		<p>The code is valid for <strong>%d minutes</strong>.</p>
		<p style="color: #757575; font-size: 12px;">If you did not request this, you can ignore this email.</p>
	</div>
</body>
</html>
`, code, expiresMinutes)
}
