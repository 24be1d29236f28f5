package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
	"go.etcd.io/bbolt"
)

type sessionStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func (s *sessionStore) Create(ctx context.Context, deviceID string, defaults storage.SessionDefaults) (*storage.Session, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	session := storage.NewSession(deviceID, defaults, s.now())

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := putValue(tx, bucketSessions, session.ID, session); err != nil {
			return err
		}
		index, err := ensureIndexBucket(tx, bucketIndexDevice, deviceID)
		if err != nil {
			return fmt.Errorf("device index: %w", err)
		}
		return index.Put([]byte(session.ID), []byte{})
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *sessionStore) Get(ctx context.Context, sessionID string) (*storage.Session, error) {
	return getBucketValue[storage.Session](ctx, s.db, bucketSessions, sessionID)
}

func (s *sessionStore) UpdateFinal(ctx context.Context, sessionID string, update storage.FinalUpdate) (*storage.Session, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var session storage.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return fmt.Errorf("sessions bucket missing")
		}
		existing := b.Get([]byte(sessionID))
		if existing == nil {
			return storage.ErrNotFound
		}
		if err := unmarshal(existing, &session); err != nil {
			return err
		}
		session.ApplyFinal(update)
		return putValue(tx, bucketSessions, sessionID, session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *sessionStore) ListByDevice(ctx context.Context, deviceID string) ([]storage.Session, error) {
	sessions := make([]storage.Session, 0)
	return sessions, s.db.View(func(tx *bbolt.Tx) error {
		index := indexBucket(tx, bucketIndexDevice, deviceID)
		if index == nil {
			return nil
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return nil
		}
		return index.ForEach(func(k, _ []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			value := b.Get(k)
			if value == nil {
				return nil
			}
			var session storage.Session
			if err := unmarshal(value, &session); err != nil {
				return err
			}
			sessions = append(sessions, session)
			return nil
		})
	})
}

func (s *sessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(sessionID))
		if value == nil {
			return storage.ErrNotFound
		}
		var session storage.Session
		if err := unmarshal(value, &session); err != nil {
			return err
		}
		if index := indexBucket(tx, bucketIndexDevice, session.DeviceID); index != nil {
			if err := index.Delete([]byte(sessionID)); err != nil {
				return err
			}
		}
		return b.Delete([]byte(sessionID))
	})
}
