package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
)

const sessionColumns = `id, device_id, start_time, end_time, summary, mood_score, mood_label`

type sessionStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *sessionStore) Create(ctx context.Context, deviceID string, defaults storage.SessionDefaults) (*storage.Session, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	session := storage.NewSession(deviceID, defaults, s.now())
	start := formatTime(session.StartTime)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, device_id, start_time, start_ms, end_time, end_ms, summary, mood_score, mood_label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '')
	`, session.ID, session.DeviceID, start, session.StartTime.UnixMilli(), start, session.StartTime.UnixMilli(),
		session.Summary, session.Score())
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return &session, nil
}

func (s *sessionStore) Get(ctx context.Context, sessionID string) (*storage.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, sessionID)
	return scanSession(row)
}

// UpdateFinal overwrites end time, summary, score and (when non-empty) label
// in a single statement. end_ms never drops below start_ms.
func (s *sessionStore) UpdateFinal(ctx context.Context, sessionID string, update storage.FinalUpdate) (*storage.Session, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	endMs := update.EndTime.UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_sessions SET
			end_time = CASE WHEN ? < start_ms THEN start_time ELSE ? END,
			end_ms = MAX(?, start_ms),
			summary = ?,
			mood_score = ?,
			mood_label = CASE WHEN ? = '' THEN mood_label ELSE ? END
		WHERE id = ?
	`, endMs, formatTime(update.EndTime), endMs, update.Summary, update.MoodScore,
		update.MoodLabel, update.MoodLabel, sessionID)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}

	return s.Get(ctx, sessionID)
}

func (s *sessionStore) ListByDevice(ctx context.Context, deviceID string) ([]storage.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM chat_sessions
		WHERE device_id = ?
		ORDER BY start_ms, id
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []storage.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	return sessions, rows.Err()
}

func (s *sessionStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
