package recovery

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/habitcell/server/internal/model"
	"github.com/habitcell/server/internal/repo"
)

// exportedAtLayouts are tried in order; anything else falls back to server time.
var exportedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UpsertBackup stores body as the device's only backup, replacing any earlier one. body must be a
// JSON object carrying device_uuid; every other field is opaque. The checksum covers the whole
// canonical document, device_uuid included.
func (s *Service) UpsertBackup(ctx context.Context, body []byte) (string, error) {
	doc, canonical, err := canonicalize(body)
	if err != nil {
		return "", err
	}

	rawUUID, _ := doc["device_uuid"].(string)
	deviceUUID, err := validateDeviceUUID(rawUUID)
	if err != nil {
		return "", newError(ErrValidation, "device_uuid required in payload")
	}
	exportedAt, _ := doc["exported_at"].(string)

	backup := model.Backup{
		DeviceUUID:       deviceUUID,
		Payload:          canonical,
		Checksum:         Checksum(canonical),
		PayloadUpdatedAt: parseExportedAt(exportedAt, s.now()),
	}
	if _, err := s.backups.Upsert(ctx, backup); err != nil {
		return "", storageError("upsert backup", err)
	}

	s.logger.InfoContext(ctx, "backup stored",
		"device_uuid", deviceUUID,
		"checksum", backup.Checksum,
		"bytes", len(canonical),
	)
	return deviceUUID, nil
}

// LatestBackup returns the device's own backup
func (s *Service) LatestBackup(ctx context.Context, deviceUUID string) (model.BackupSnapshot, error) {
	deviceUUID, err := validateDeviceUUID(deviceUUID)
	if err != nil {
		return model.BackupSnapshot{}, err
	}
	backup, err := s.backups.GetByDevice(ctx, deviceUUID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.BackupSnapshot{}, newError(ErrNotFound, "no backup found")
		}
		return model.BackupSnapshot{}, storageError("load backup", err)
	}
	return backup.Snapshot(), nil
}

// Checksum is the lowercase hex SHA-256 of a canonical payload
func Checksum(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// canonicalize decodes body as a single JSON object and re-encodes it with sorted keys, number
// literals preserved and no HTML escaping.
func canonicalize(body []byte) (map[string]any, []byte, error) {
	invalid := newError(ErrValidation, "request body must be a JSON object")

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return nil, nil, invalid
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, nil, invalid
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, nil, invalid
	}
	return doc, bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// parseExportedAt never fails: absent or unparseable input yields now.
func parseExportedAt(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC()
	}
	for _, layout := range exportedAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return now.UTC()
}
