package recovery

import (
	"context"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habitcell/server/internal/model"
	"github.com/habitcell/server/internal/repo"
)

// memStore backs all three repo fakes so the verified-email join sees the same devices.
type memStore struct {
	mu            sync.Mutex
	seq           int
	devices       map[string]*model.Device
	verifications map[uuid.UUID]model.EmailVerification
	backups       map[string]model.Backup

	failBackups error
}

func newMemStore() *memStore {
	return &memStore{
		devices:       map[string]*model.Device{},
		verifications: map[uuid.UUID]model.EmailVerification{},
		backups:       map[string]model.Backup{},
	}
}

func (m *memStore) tick() time.Time {
	m.seq++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Millisecond)
}

func (m *memStore) touch(deviceUUID string) {
	now := m.tick()
	if d, ok := m.devices[deviceUUID]; ok {
		d.UpdatedAt = now
		return
	}
	m.devices[deviceUUID] = &model.Device{DeviceUUID: deviceUUID, CreatedAt: now, UpdatedAt: now}
}

func (m *memStore) challengesFor(deviceUUID, email string) []model.EmailVerification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EmailVerification
	for _, v := range m.verifications {
		if v.DeviceUUID == deviceUUID && v.Email == email {
			out = append(out, v)
		}
	}
	return out
}

func (m *memStore) device(deviceUUID string) (model.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceUUID]
	if !ok {
		return model.Device{}, false
	}
	return *d, true
}

type memDevices struct{ *memStore }

func (m memDevices) Get(_ context.Context, deviceUUID string) (model.Device, error) {
	d, ok := m.device(deviceUUID)
	if !ok {
		return model.Device{}, repo.ErrNotFound
	}
	return d, nil
}

type memVerifications struct{ *memStore }

func (m memVerifications) Replace(_ context.Context, deviceUUID, email, codeHashHex string, expiresAt time.Time) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch(deviceUUID)
	for id, v := range m.verifications {
		if v.DeviceUUID == deviceUUID && v.Email == email {
			delete(m.verifications, id)
		}
	}
	hash, err := hex.DecodeString(codeHashHex)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	m.verifications[id] = model.EmailVerification{
		ID:         id,
		DeviceUUID: deviceUUID,
		Email:      email,
		CodeHash:   hash,
		ExpiresAt:  expiresAt,
		CreatedAt:  m.tick(),
	}
	return id, nil
}

func (m memVerifications) GetLatest(_ context.Context, deviceUUID, email string) (model.EmailVerification, error) {
	rows := m.challengesFor(deviceUUID, email)
	if len(rows) == 0 {
		return model.EmailVerification{}, repo.ErrNotFound
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows[0], nil
}

func (m memVerifications) IncrementAttempt(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[id]
	if !ok {
		return 0, repo.ErrNotFound
	}
	v.AttemptCount++
	m.verifications[id] = v
	return v.AttemptCount, nil
}

func (m memVerifications) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.verifications, id)
	return nil
}

func (m memVerifications) Consume(_ context.Context, id uuid.UUID, deviceUUID, email string, verifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.verifications[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.verifications, id)
	m.touch(deviceUUID)
	d := m.devices[deviceUUID]
	d.Email = &email
	d.EmailVerifiedAt = &verifiedAt
	return nil
}

type memBackups struct{ *memStore }

func (m memBackups) Upsert(_ context.Context, b model.Backup) (model.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBackups != nil {
		return model.Backup{}, m.failBackups
	}
	m.touch(b.DeviceUUID)
	now := m.tick()
	if prev, ok := m.backups[b.DeviceUUID]; ok {
		b.CreatedAt = prev.CreatedAt
	} else {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	m.backups[b.DeviceUUID] = b
	return b, nil
}

func (m memBackups) GetByDevice(_ context.Context, deviceUUID string) (model.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBackups != nil {
		return model.Backup{}, m.failBackups
	}
	b, ok := m.backups[deviceUUID]
	if !ok {
		return model.Backup{}, repo.ErrNotFound
	}
	return b, nil
}

func (m memBackups) GetLatestByVerifiedEmail(_ context.Context, email string) (model.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failBackups != nil {
		return model.Backup{}, m.failBackups
	}
	var cohort []model.Backup
	for id, d := range m.devices {
		if !d.Verified() || *d.Email != email {
			continue
		}
		if b, ok := m.backups[id]; ok {
			cohort = append(cohort, b)
		}
	}
	if len(cohort) == 0 {
		return model.Backup{}, repo.ErrNotFound
	}
	sort.Slice(cohort, func(i, j int) bool {
		if !cohort[i].PayloadUpdatedAt.Equal(cohort[j].PayloadUpdatedAt) {
			return cohort[i].PayloadUpdatedAt.After(cohort[j].PayloadUpdatedAt)
		}
		return cohort[i].DeviceUUID < cohort[j].DeviceUUID
	})
	return cohort[0], nil
}

type sentCode struct {
	to      string
	code    string
	minutes int
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (f *fakeSender) SendVerificationCode(_ context.Context, toEmail, code string, expiresMinutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentCode{to: toEmail, code: code, minutes: expiresMinutes})
	return nil
}

func (f *fakeSender) last() sentCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentCode{}
	}
	return f.sent[len(f.sent)-1]
}

var errDeliveryDown = errors.New("smtp: connection refused")
