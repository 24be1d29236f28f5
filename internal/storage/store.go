package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Sessions() SessionStore
	Devices() DeviceStore
}

// SessionStore manages durable chat session records.
//
// Implementations own the Session records exclusively; callers only ever see
// copies.
type SessionStore interface {
	// Create starts a new session for deviceID with neutral defaults.
	Create(ctx context.Context, deviceID string, defaults SessionDefaults) (*Session, error)
	// Get returns a single session by ID.
	Get(ctx context.Context, sessionID string) (*Session, error)
	// UpdateFinal overwrites the end time, summary and mood score of a session.
	// It returns ErrNotFound when the session does not exist.
	UpdateFinal(ctx context.Context, sessionID string, update FinalUpdate) (*Session, error)
	// ListByDevice returns every session owned by deviceID, in no particular order.
	ListByDevice(ctx context.Context, deviceID string) ([]Session, error)
	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error
}

// DeviceStore manages the registry of opaque device identifiers.
type DeviceStore interface {
	// Register creates the device if needed and bumps its last-seen time.
	Register(ctx context.Context, deviceID string) (*Device, error)
	Get(ctx context.Context, deviceID string) (*Device, error)
}
