package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// MinMoodScore and MaxMoodScore bound every stored mood score.
	MinMoodScore = 0
	MaxMoodScore = 100

	// NeutralMoodScore is the score a new session starts with.
	NeutralMoodScore = 50

	// DefaultInitialSummary is stored on a freshly created session.
	DefaultInitialSummary = "User has just started the conversation."
)

// Session represents one chat session owned by a device.
type Session struct {
	ID        string     `json:"id"`
	DeviceID  string     `json:"device_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Summary   string     `json:"summary,omitempty"`
	MoodScore *int       `json:"mood_score,omitempty"`
	MoodLabel string     `json:"mood_label,omitempty"`
}

// Scored reports whether the session carries a mood score.
func (s Session) Scored() bool {
	return s.MoodScore != nil
}

// Score returns the mood score, or 0 when the session is unscored.
func (s Session) Score() int {
	if s.MoodScore == nil {
		return 0
	}
	return *s.MoodScore
}

// InProgress reports whether the session has not been finalized yet. A session
// whose end time still equals its start time has never been flushed.
func (s Session) InProgress() bool {
	return s.EndTime == nil || s.EndTime.Equal(s.StartTime)
}

// ApplyFinal overwrites the mutable fields of the session with update.
// The end time is clamped so that it never precedes the start time.
func (s *Session) ApplyFinal(update FinalUpdate) {
	end := update.EndTime
	if end.Before(s.StartTime) {
		end = s.StartTime
	}
	score := update.MoodScore
	s.EndTime = &end
	s.Summary = update.Summary
	s.MoodScore = &score
	if update.MoodLabel != "" {
		s.MoodLabel = update.MoodLabel
	}
}

// FinalUpdate is the payload written when a session draft is flushed.
type FinalUpdate struct {
	EndTime   time.Time `json:"end_time"`
	Summary   string    `json:"summary"`
	MoodScore int       `json:"mood_score"`
	MoodLabel string    `json:"mood_label,omitempty"`
}

// Validate checks the update against the session invariants.
func (u FinalUpdate) Validate() error {
	if u.MoodScore < MinMoodScore || u.MoodScore > MaxMoodScore {
		return fmt.Errorf("mood score %d out of range [%d,%d]", u.MoodScore, MinMoodScore, MaxMoodScore)
	}
	if u.EndTime.IsZero() {
		return fmt.Errorf("end time is required")
	}
	return nil
}

// SessionDefaults holds the values a new session is created with.
type SessionDefaults struct {
	MoodScore int
	Summary   string
}

// DefaultSessionDefaults returns the neutral defaults.
func DefaultSessionDefaults() SessionDefaults {
	return SessionDefaults{
		MoodScore: NeutralMoodScore,
		Summary:   DefaultInitialSummary,
	}
}

// NewSession builds a fresh session record for deviceID. The end time starts
// equal to the start time, marking the session as in progress.
func NewSession(deviceID string, defaults SessionDefaults, now time.Time) Session {
	if defaults.Summary == "" {
		defaults.Summary = DefaultInitialSummary
	}
	score := defaults.MoodScore
	if score < MinMoodScore || score > MaxMoodScore {
		score = NeutralMoodScore
	}
	start := now.UTC().Truncate(time.Millisecond)
	end := start
	return Session{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		StartTime: start,
		EndTime:   &end,
		Summary:   defaults.Summary,
		MoodScore: &score,
	}
}

// Device represents a client device identified by an opaque ID.
type Device struct {
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
