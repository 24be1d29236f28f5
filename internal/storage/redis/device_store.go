package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
	"github.com/redis/go-redis/v9"
)

type deviceStore struct {
	client *redis.Client
	keys   keys
	now    func() time.Time
}

// Register creates the device record or refreshes its last_seen timestamp
func (s *deviceStore) Register(ctx context.Context, deviceID string) (*storage.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	keys := []string{s.keys.device(deviceID)}
	args := []interface{}{deviceID, formatTime(s.now())}

	if err := registerDevice.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}

	return s.Get(ctx, deviceID)
}

// Get retrieves a device by ID
func (s *deviceStore) Get(ctx context.Context, deviceID string) (*storage.Device, error) {
	data, err := s.client.HGetAll(ctx, s.keys.device(deviceID)).Result()
	if err != nil {
		return nil, err
	}

	return parseDevice(data)
}
