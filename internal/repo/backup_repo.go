package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/habitcell/server/internal/model"
)

// BackupRepo defines the interface for backup repository operations
type BackupRepo interface {
	Upsert(ctx context.Context, backup model.Backup) (model.Backup, error)
	GetByDevice(ctx context.Context, deviceUUID string) (model.Backup, error)
	GetLatestByVerifiedEmail(ctx context.Context, email string) (model.Backup, error)
}

type backupRepo struct {
	db *sql.DB
}

// NewBackupRepo creates a new BackupRepo instance
func NewBackupRepo(db *sql.DB) BackupRepo {
	return &backupRepo{db: db}
}

// Upsert replaces the device's backup row in a single statement. INSERT ... ON CONFLICT holds the
// row lock for the write, so concurrent upserts for one device serialize and the last commit wins.
func (r *backupRepo) Upsert(ctx context.Context, backup model.Backup) (model.Backup, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Backup{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := touchDevice(ctx, tx, backup.DeviceUUID); err != nil {
		return model.Backup{}, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO backups (device_uuid, payload_json, checksum, payload_updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_uuid) DO UPDATE
		SET payload_json = EXCLUDED.payload_json,
		    checksum = EXCLUDED.checksum,
		    payload_updated_at = EXCLUDED.payload_updated_at,
		    updated_at = now()
		RETURNING created_at, updated_at
	`, backup.DeviceUUID, string(backup.Payload), backup.Checksum, backup.PayloadUpdatedAt).Scan(
		&backup.CreatedAt,
		&backup.UpdatedAt,
	)
	if err != nil {
		return model.Backup{}, fmt.Errorf("upsert backup: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Backup{}, fmt.Errorf("commit: %w", err)
	}
	return backup, nil
}

// GetByDevice returns the device's own backup or ErrNotFound
func (r *backupRepo) GetByDevice(ctx context.Context, deviceUUID string) (model.Backup, error) {
	return r.scanOne(ctx, `
		SELECT device_uuid, payload_json, checksum, payload_updated_at, created_at, updated_at
		FROM backups
		WHERE device_uuid = $1
	`, deviceUUID)
}

// GetLatestByVerifiedEmail returns the newest backup (by payload_updated_at, ties broken by
// device_uuid) across every device verified for the email.
func (r *backupRepo) GetLatestByVerifiedEmail(ctx context.Context, email string) (model.Backup, error) {
	return r.scanOne(ctx, `
		SELECT b.device_uuid, b.payload_json, b.checksum, b.payload_updated_at, b.created_at, b.updated_at
		FROM backups b
		JOIN devices d ON b.device_uuid = d.device_uuid
		WHERE d.email = $1 AND d.email_verified_at IS NOT NULL
		ORDER BY b.payload_updated_at DESC, b.device_uuid ASC
		LIMIT 1
	`, email)
}

func (r *backupRepo) scanOne(ctx context.Context, query string, arg string) (model.Backup, error) {
	var b model.Backup
	var payload string
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&b.DeviceUUID,
		&payload,
		&b.Checksum,
		&b.PayloadUpdatedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Backup{}, ErrNotFound
		}
		return model.Backup{}, fmt.Errorf("query backup: %w", err)
	}
	b.Payload = []byte(payload)
	return b, nil
}
