package recovery

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/habitcell/server/internal/repo"
)

func validateDeviceUUID(deviceUUID string) (string, error) {
	deviceUUID = strings.TrimSpace(deviceUUID)
	if deviceUUID == "" {
		return "", newError(ErrValidation, "device_uuid required")
	}
	return deviceUUID, nil
}

func validateEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return "", newError(ErrValidation, "valid email required")
	}
	return email, nil
}

// RequestCode issues a fresh challenge for (device, email), superseding any earlier one, and
// mails the plaintext code. The challenge is committed before delivery is attempted, so a
// delivery failure leaves a valid row behind and the client simply requests again.
func (s *Service) RequestCode(ctx context.Context, deviceUUID, email string) error {
	deviceUUID, err := validateDeviceUUID(deviceUUID)
	if err != nil {
		return err
	}
	email, err = validateEmail(email)
	if err != nil {
		return err
	}

	code, err := s.generateCode()
	if err != nil {
		return &Error{Kind: ErrStorage, Message: "internal error", Err: err}
	}
	expiresAt := s.now().Add(codeExpiry)

	if _, err := s.verifications.Replace(ctx, deviceUUID, email, hashCodeHex(deviceUUID, email, code, s.salt), expiresAt); err != nil {
		return storageError("replace challenge", err)
	}

	if err := s.sender.SendVerificationCode(ctx, email, code, int(codeExpiry.Minutes())); err != nil {
		s.logger.WarnContext(ctx, "verification email delivery failed",
			"device_uuid", deviceUUID,
			"email", MaskEmail(email),
			"error", err,
		)
		return &Error{
			Kind:    ErrDeliveryUnavailable,
			Message: "failed to send verification email, please try again shortly",
			Err:     err,
		}
	}

	s.logger.InfoContext(ctx, "verification code issued",
		"device_uuid", deviceUUID,
		"email", MaskEmail(email),
		"expires_at", expiresAt,
	)
	return nil
}

// VerifyCode checks code against the latest challenge for (device, email). Checks run in order:
// attempt ceiling, expiry, hash. On a match the device's email becomes verified and the
// challenge is consumed in the same transaction.
func (s *Service) VerifyCode(ctx context.Context, deviceUUID, email, code string) error {
	deviceUUID, err := validateDeviceUUID(deviceUUID)
	if err != nil {
		return err
	}
	email, err = validateEmail(email)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if !isSixDigits(code) {
		return newError(ErrValidation, "code must be exactly 6 digits")
	}

	challenge, err := s.verifications.GetLatest(ctx, deviceUUID, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errChallengeNotFound()
		}
		return storageError("load challenge", err)
	}

	if challenge.AttemptCount >= maxAttempts {
		return s.exhaust(ctx, challenge.ID)
	}

	// Expired rows stay until the next issuance replaces them.
	if s.now().After(challenge.ExpiresAt) {
		return newError(ErrCodeExpired, "verification code expired, request a new code")
	}

	if !constantTimeEqual(hashCodeBytes(deviceUUID, email, code, s.salt), challenge.CodeHash) {
		attempts, err := s.verifications.IncrementAttempt(ctx, challenge.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return errChallengeNotFound()
			}
			return storageError("record attempt", err)
		}
		if attempts >= maxAttempts {
			return s.exhaust(ctx, challenge.ID)
		}
		return newError(ErrCodeMismatch, "verification code does not match")
	}

	if err := s.verifications.Consume(ctx, challenge.ID, deviceUUID, email, s.now().UTC()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return errChallengeNotFound()
		}
		return storageError("consume challenge", err)
	}

	s.logger.InfoContext(ctx, "email verified",
		"device_uuid", deviceUUID,
		"email", MaskEmail(email),
	)
	return nil
}

// exhaust deletes a challenge that reached the attempt ceiling so the client must re-request.
func (s *Service) exhaust(ctx context.Context, id uuid.UUID) error {
	if err := s.verifications.Delete(ctx, id); err != nil {
		return storageError("delete exhausted challenge", err)
	}
	return newError(ErrAttemptsExhausted, "too many attempts, request a new code")
}

func errChallengeNotFound() error {
	return newError(ErrChallengeNotFound, "request a verification code first")
}
