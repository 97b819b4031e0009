package mail

import (
	"context"
	"log/slog"
)

// LogSender writes codes to the log instead of sending mail. Only for local development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerificationCode(ctx context.Context, toEmail, code string, expiresMinutes int) error {
	s.logger.WarnContext(ctx, "[DEV] verification code",
		"to", toEmail,
		"code", code,
		"expires_minutes", expiresMinutes,
	)
	return nil
}
