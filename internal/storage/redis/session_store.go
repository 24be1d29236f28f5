package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
	"github.com/redis/go-redis/v9"
)

type sessionStore struct {
	client *redis.Client
	keys   keys
	now    func() time.Time
}

// Create stores a new session for a device
func (s *sessionStore) Create(ctx context.Context, deviceID string, defaults storage.SessionDefaults) (*storage.Session, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	session := storage.NewSession(deviceID, defaults, s.now())

	keys := []string{s.keys.session(session.ID), s.keys.deviceSessions(deviceID)}
	args := []interface{}{
		session.ID,
		session.DeviceID,
		formatTime(session.StartTime),
		session.StartTime.UnixMilli(),
		session.Summary,
		session.Score(),
	}

	if err := createSession.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &session, nil
}

// Get retrieves a session by ID
func (s *sessionStore) Get(ctx context.Context, sessionID string) (*storage.Session, error) {
	data, err := s.client.HGetAll(ctx, s.keys.session(sessionID)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return parseSession(data)
}

// UpdateFinal atomically overwrites end time, summary and mood score
func (s *sessionStore) UpdateFinal(ctx context.Context, sessionID string, update storage.FinalUpdate) (*storage.Session, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	keys := []string{s.keys.session(sessionID)}
	args := []interface{}{
		formatTime(update.EndTime),
		update.EndTime.UnixMilli(),
		update.Summary,
		strconv.Itoa(update.MoodScore),
		update.MoodLabel,
	}

	if err := updateFinal.Run(ctx, s.client, keys, args...).Err(); err != nil {
		if isScriptError(err, "NOT_FOUND") {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("update session: %w", err)
	}

	return s.Get(ctx, sessionID)
}

// ListByDevice returns all sessions recorded for a device
func (s *sessionStore) ListByDevice(ctx context.Context, deviceID string) ([]storage.Session, error) {
	sessionIDs, err := s.client.SMembers(ctx, s.keys.deviceSessions(deviceID)).Result()
	if err != nil {
		return nil, err
	}

	if len(sessionIDs) == 0 {
		return []storage.Session{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(sessionIDs))

	for i, id := range sessionIDs {
		cmds[i] = pipe.HGetAll(ctx, s.keys.session(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	sessions := make([]storage.Session, 0, len(sessionIDs))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		session, err := parseSession(data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	return sessions, nil
}

// Delete removes a session and its device index entry
func (s *sessionStore) Delete(ctx context.Context, sessionID string) error {
	sessionKey := s.keys.session(sessionID)

	deviceID, err := s.client.HGet(ctx, sessionKey, "device_id").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey)
	pipe.SRem(ctx, s.keys.deviceSessions(deviceID), sessionID)
	_, err = pipe.Exec(ctx)
	return err
}

// isScriptError matches an error_reply raised by one of the Lua scripts
func isScriptError(err error, reply string) bool {
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return strings.Contains(redisErr.Error(), reply)
	}
	return false
}
