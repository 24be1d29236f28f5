package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
	"go.etcd.io/bbolt"
)

type deviceStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func (s *deviceStore) Register(ctx context.Context, deviceID string) (*storage.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	now := s.now().UTC()
	var device storage.Device
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDevices))
		if b == nil {
			return fmt.Errorf("devices bucket missing")
		}
		if existing := b.Get([]byte(deviceID)); existing != nil {
			if err := unmarshal(existing, &device); err != nil {
				return err
			}
		} else {
			device = storage.Device{DeviceID: deviceID, CreatedAt: now}
		}
		device.LastSeen = now
		return putValue(tx, bucketDevices, deviceID, device)
	})
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *deviceStore) Get(ctx context.Context, deviceID string) (*storage.Device, error) {
	return getBucketValue[storage.Device](ctx, s.db, bucketDevices, deviceID)
}
