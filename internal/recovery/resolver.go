package recovery

import (
	"context"
	"errors"

	"github.com/habitcell/server/internal/model"
	"github.com/habitcell/server/internal/repo"
)

// RecoverBackup returns the newest backup produced by any device verified for the caller's email.
// The caller's device must itself be verified.
func (s *Service) RecoverBackup(ctx context.Context, deviceUUID string) (model.BackupSnapshot, error) {
	deviceUUID, err := validateDeviceUUID(deviceUUID)
	if err != nil {
		return model.BackupSnapshot{}, err
	}

	device, err := s.devices.Get(ctx, deviceUUID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return model.BackupSnapshot{}, storageError("load device", err)
	}
	if err != nil || !device.Verified() {
		return model.BackupSnapshot{}, newError(ErrVerificationRequired,
			"email verification required, register an email from the backup screen first")
	}

	backup, err := s.backups.GetLatestByVerifiedEmail(ctx, *device.Email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.BackupSnapshot{}, newError(ErrNotFound, "no backup found for this email")
		}
		return model.BackupSnapshot{}, storageError("load backup by email", err)
	}

	s.logger.InfoContext(ctx, "backup recovered",
		"device_uuid", deviceUUID,
		"source_device_uuid", backup.DeviceUUID,
	)
	return backup.Snapshot(), nil
}

// Status reports verification state and whether a recoverable backup exists. Unknown devices
// are a valid fresh-install state, not an error. Unverified devices only see their own backup.
func (s *Service) Status(ctx context.Context, deviceUUID string) (model.RecoveryStatus, error) {
	deviceUUID, err := validateDeviceUUID(deviceUUID)
	if err != nil {
		return model.RecoveryStatus{}, err
	}

	device, err := s.devices.Get(ctx, deviceUUID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.RecoveryStatus{}, nil
		}
		return model.RecoveryStatus{}, storageError("load device", err)
	}

	var backup model.Backup
	if device.Verified() {
		backup, err = s.backups.GetLatestByVerifiedEmail(ctx, *device.Email)
	} else {
		backup, err = s.backups.GetByDevice(ctx, deviceUUID)
	}
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return model.RecoveryStatus{}, storageError("probe backup", err)
	}

	status := model.RecoveryStatus{
		EmailVerified: device.Verified(),
		Email:         device.Email,
	}
	if err == nil {
		lastBackupAt := backup.PayloadUpdatedAt.UTC()
		status.HasBackup = true
		status.LastBackupAt = &lastBackupAt
	}
	return status, nil
}
