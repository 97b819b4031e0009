package recovery

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Service matches exactly one of these via errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrNotFound             = errors.New("backup not found")
	ErrVerificationRequired = errors.New("email verification required")
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrCodeMismatch         = errors.New("code mismatch")
	ErrCodeExpired          = errors.New("code expired")
	ErrAttemptsExhausted    = errors.New("attempts exhausted")
	ErrDeliveryUnavailable  = errors.New("delivery unavailable")
	ErrStorage              = errors.New("storage error")
)

// Error carries a kind, a message that is safe to show to clients, and the underlying cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func storageError(op string, err error) *Error {
	return &Error{Kind: ErrStorage, Message: "internal error", Err: fmt.Errorf("%s: %w", op, err)}
}

// PublicMessage returns the client-safe message of err, or a generic one for foreign errors.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
