package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/habitcell/server/internal/model"
)

// DeviceRepo defines the interface for device repository operations
type DeviceRepo interface {
	Get(ctx context.Context, deviceUUID string) (model.Device, error)
}

type deviceRepo struct {
	db *sql.DB
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(db *sql.DB) DeviceRepo {
	return &deviceRepo{db: db}
}

// Get returns the device row or ErrNotFound
func (r *deviceRepo) Get(ctx context.Context, deviceUUID string) (model.Device, error) {
	query := `
		SELECT device_uuid, email, email_verified_at, created_at, updated_at
		FROM devices
		WHERE device_uuid = $1
	`
	var device model.Device
	err := r.db.QueryRowContext(ctx, query, deviceUUID).Scan(
		&device.DeviceUUID,
		&device.Email,
		&device.EmailVerifiedAt,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Device{}, ErrNotFound
		}
		return model.Device{}, fmt.Errorf("query device: %w", err)
	}
	return device, nil
}

// touchDevice creates the device row if absent, else bumps updated_at.
func touchDevice(ctx context.Context, ex execer, deviceUUID string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO devices (device_uuid) VALUES ($1)
		ON CONFLICT (device_uuid) DO UPDATE SET updated_at = now()
	`, deviceUUID)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return nil
}
