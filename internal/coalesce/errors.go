package coalesce

import "errors"

var (
	// ErrInvalidSessionID is returned when an update names no session.
	ErrInvalidSessionID = errors.New("session id is required")

	// ErrInvalidScore is returned when a mood score falls outside [0,100].
	ErrInvalidScore = errors.New("mood score out of range")

	// ErrClosed is returned by RequestUpdate once Shutdown has started.
	ErrClosed = errors.New("coalescer is shut down")
)
