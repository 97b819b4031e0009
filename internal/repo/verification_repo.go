package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/habitcell/server/internal/model"
)

// VerificationRepo defines the interface for email verification challenge operations
type VerificationRepo interface {
	Replace(ctx context.Context, deviceUUID, email, codeHashHex string, expiresAt time.Time) (uuid.UUID, error)
	GetLatest(ctx context.Context, deviceUUID, email string) (model.EmailVerification, error)
	IncrementAttempt(ctx context.Context, id uuid.UUID) (newAttemptCount int, err error)
	Delete(ctx context.Context, id uuid.UUID) error
	Consume(ctx context.Context, id uuid.UUID, deviceUUID, email string, verifiedAt time.Time) error
}

type verificationRepo struct {
	db *sql.DB
}

// NewVerificationRepo creates a new VerificationRepo instance
func NewVerificationRepo(db *sql.DB) VerificationRepo {
	return &verificationRepo{db: db}
}

// Replace ensures the device exists, drops every prior challenge for (device, email) and inserts
// a fresh one, all in one transaction. An advisory lock on the pair serializes concurrent requests
// so two live challenges can never coexist.
func (r *verificationRepo) Replace(ctx context.Context, deviceUUID, email, codeHashHex string, expiresAt time.Time) (uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Released on COMMIT/ROLLBACK.
	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, deviceUUID, email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("advisory lock: %w", err)
	}

	if err := touchDevice(ctx, tx, deviceUUID); err != nil {
		return uuid.Nil, err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM email_verifications
		WHERE device_uuid = $1 AND email = $2
	`, deviceUUID, email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("delete prior challenges: %w", err)
	}

	var id uuid.UUID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO email_verifications (device_uuid, email, code_hash, expires_at, attempt_count)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING id
	`, deviceUUID, email, codeHashHex, expiresAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// GetLatest returns the most recently created challenge for the pair, regardless of expiry or
// attempt count; the caller decides what those mean.
func (r *verificationRepo) GetLatest(ctx context.Context, deviceUUID, email string) (model.EmailVerification, error) {
	query := `
		SELECT id, device_uuid, email, code_hash, expires_at, attempt_count, created_at
		FROM email_verifications
		WHERE device_uuid = $1 AND email = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var v model.EmailVerification
	var codeHashHex string
	err := r.db.QueryRowContext(ctx, query, deviceUUID, email).Scan(
		&v.ID,
		&v.DeviceUUID,
		&v.Email,
		&codeHashHex,
		&v.ExpiresAt,
		&v.AttemptCount,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EmailVerification{}, ErrNotFound
		}
		return model.EmailVerification{}, fmt.Errorf("query challenge: %w", err)
	}

	v.CodeHash, err = hex.DecodeString(codeHashHex)
	if err != nil {
		return model.EmailVerification{}, fmt.Errorf("decode code_hash: %w", err)
	}
	return v, nil
}

// IncrementAttempt sets attempt_count = attempt_count + 1; returns the new attempt_count.
func (r *verificationRepo) IncrementAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx, `
		UPDATE email_verifications
		SET attempt_count = attempt_count + 1
		WHERE id = $1
		RETURNING attempt_count
	`, id).Scan(&newCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment attempt: %w", err)
	}
	return newCount, nil
}

// Delete removes a challenge. Deleting an already-removed challenge is not an error.
func (r *verificationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM email_verifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

// Consume deletes the challenge and marks the device's email verified in one transaction.
// If the challenge was already consumed by a concurrent request, nothing changes and
// ErrNotFound is returned.
func (r *verificationRepo) Consume(ctx context.Context, id uuid.UUID, deviceUUID, email string, verifiedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM email_verifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (device_uuid, email, email_verified_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (device_uuid) DO UPDATE
		SET email = EXCLUDED.email,
		    email_verified_at = EXCLUDED.email_verified_at,
		    updated_at = EXCLUDED.updated_at
	`, deviceUUID, email, verifiedAt)
	if err != nil {
		return fmt.Errorf("mark device verified: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
