package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Device represents an app installation identified by a client-generated UUID
type Device struct {
	DeviceUUID      string
	Email           *string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Verified reports whether the device has proven ownership of its email
func (d Device) Verified() bool {
	return d.Email != nil && d.EmailVerifiedAt != nil
}

// EmailVerification is a pending one-time code challenge for a (device, email) pair
type EmailVerification struct {
	ID           uuid.UUID
	DeviceUUID   string
	Email        string
	CodeHash     []byte
	ExpiresAt    time.Time
	AttemptCount int
	CreatedAt    time.Time
}

// Backup is the single latest snapshot stored for a device
type Backup struct {
	DeviceUUID       string
	Payload          json.RawMessage
	Checksum         string
	PayloadUpdatedAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BackupSnapshot is the client-facing view of a backup
type BackupSnapshot struct {
	Payload          json.RawMessage `json:"payload"`
	Checksum         string          `json:"checksum"`
	PayloadUpdatedAt time.Time       `json:"payload_updated_at"`
}

// Snapshot returns the client-facing view of the backup
func (b Backup) Snapshot() BackupSnapshot {
	return BackupSnapshot{
		Payload:          b.Payload,
		Checksum:         b.Checksum,
		PayloadUpdatedAt: b.PayloadUpdatedAt.UTC(),
	}
}

// RecoveryStatus composes verification state and backup presence for one device
type RecoveryStatus struct {
	EmailVerified bool       `json:"email_verified"`
	Email         *string    `json:"email"`
	HasBackup     bool       `json:"has_backup"`
	LastBackupAt  *time.Time `json:"last_backup_at"`
}
