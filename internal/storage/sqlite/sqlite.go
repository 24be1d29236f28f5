// Package sqlite implements storage.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goodtune/moodchat/internal/database"
	"github.com/goodtune/moodchat/internal/storage"
)

// Store implements the storage.Store interface using SQLite
type Store struct {
	db  *database.DB
	now func() time.Time
}

// Open opens (and migrates) the SQLite database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := storage.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	db, err := database.New(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Sessions returns the SessionStore implementation
func (s *Store) Sessions() storage.SessionStore {
	return &sessionStore{db: s.db.DB, now: s.now}
}

// Devices returns the DeviceStore implementation
func (s *Store) Devices() storage.DeviceStore {
	return &deviceStore{db: s.db.DB, now: s.now}
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func scanSession(row scanner) (*storage.Session, error) {
	var (
		session   storage.Session
		startTime string
		endTime   sql.NullString
		score     sql.NullInt64
	)

	if err := row.Scan(&session.ID, &session.DeviceID, &startTime, &endTime, &session.Summary, &score, &session.MoodLabel); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	start, err := time.Parse(time.RFC3339Nano, startTime)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	session.StartTime = start

	if endTime.Valid {
		end, err := time.Parse(time.RFC3339Nano, endTime.String)
		if err != nil {
			return nil, fmt.Errorf("parse end_time: %w", err)
		}
		session.EndTime = &end
	}

	if score.Valid {
		session.MoodScore = storage.IntPtr(int(score.Int64))
	}

	return &session, nil
}
