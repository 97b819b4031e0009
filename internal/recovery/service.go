package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/habitcell/server/internal/repo"
)

const (
	codeExpiry  = 10 * time.Minute
	maxAttempts = 5
)

// CodeSender delivers a plaintext verification code to an email address
type CodeSender interface {
	SendVerificationCode(ctx context.Context, toEmail, code string, expiresMinutes int) error
}

// Service implements the device email verification, backup and recovery workflow
type Service struct {
	devices       repo.DeviceRepo
	verifications repo.VerificationRepo
	backups       repo.BackupRepo
	sender        CodeSender
	salt          string
	logger        *slog.Logger

	now          func() time.Time
	generateCode func() (string, error)
}

// Option customizes a Service
type Option func(*Service)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator replaces the random code source
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.generateCode = gen }
}

// NewService creates a new recovery service
func NewService(
	devices repo.DeviceRepo,
	verifications repo.VerificationRepo,
	backups repo.BackupRepo,
	sender CodeSender,
	salt string,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		devices:       devices,
		verifications: verifications,
		backups:       backups,
		sender:        sender,
		salt:          salt,
		logger:        logger,
		now:           time.Now,
		generateCode:  generateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
