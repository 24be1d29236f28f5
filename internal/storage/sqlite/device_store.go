package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
)

type deviceStore struct {
	db  *sql.DB
	now func() time.Time
}

// Register inserts the device or bumps last_seen, keeping created_at.
func (s *deviceStore) Register(ctx context.Context, deviceID string) (*storage.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, created_at, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET last_seen = excluded.last_seen
	`, deviceID, now, now)
	if err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}

	return s.Get(ctx, deviceID)
}

func (s *deviceStore) Get(ctx context.Context, deviceID string) (*storage.Device, error) {
	var createdAt, lastSeen string
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, last_seen FROM devices WHERE device_id = ?
	`, deviceID).Scan(&createdAt, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	device := &storage.Device{DeviceID: deviceID}
	if device.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if device.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
		return nil, fmt.Errorf("parse last_seen: %w", err)
	}

	return device, nil
}
