package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
)

// parseSession converts a Redis hash to Session
func parseSession(data map[string]string) (*storage.Session, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startTime, err := time.Parse(time.RFC3339Nano, data["start_time"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse start_time: %w", err)
	}

	session := &storage.Session{
		ID:        data["id"],
		DeviceID:  data["device_id"],
		StartTime: startTime,
		Summary:   data["summary"],
		MoodLabel: data["mood_label"],
	}

	if raw := data["end_time"]; raw != "" {
		endTime, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end_time: %w", err)
		}
		session.EndTime = &endTime
	}

	if raw := data["mood_score"]; raw != "" {
		score, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mood_score: %w", err)
		}
		session.MoodScore = &score
	}

	return session, nil
}

// parseDevice converts a Redis hash to Device
func parseDevice(data map[string]string) (*storage.Device, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	lastSeen, err := time.Parse(time.RFC3339Nano, data["last_seen"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse last_seen: %w", err)
	}

	return &storage.Device{
		DeviceID:  data["device_id"],
		CreatedAt: createdAt,
		LastSeen:  lastSeen,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
