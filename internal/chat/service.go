// Package chat ties a chat turn together: analyze the message, schedule the
// session draft and reply. It also loads the calendar views for a device.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/moodchat/internal/calendar"
	"github.com/goodtune/moodchat/internal/coalesce"
	"github.com/goodtune/moodchat/internal/metrics"
	"github.com/goodtune/moodchat/internal/mood"
	"github.com/goodtune/moodchat/internal/storage"
	"github.com/rs/zerolog"
)

// ErrEmptyMessage is returned when a chat turn carries no text.
var ErrEmptyMessage = errors.New("message is empty")

// Drafts is the session draft scheduler.
type Drafts interface {
	RequestUpdate(sessionID string, u coalesce.Update) error
	Flush(ctx context.Context, sessionID string) error
	Cancel(sessionID string) bool
	Pending(sessionID string) (coalesce.Draft, bool)
	Len() int
}

// Scorer analyzes a chat turn and never fails.
type Scorer interface {
	Analyze(ctx context.Context, history []mood.Message, latest string) (mood.Result, bool)
}

// Config holds chat service configuration
type Config struct {
	Defaults  storage.SessionDefaults
	Location  *time.Location
	WeekStart time.Weekday
}

// Service handles chat sessions for devices.
type Service struct {
	store     storage.Store
	drafts    Drafts
	scorer    Scorer
	defaults  storage.SessionDefaults
	location  *time.Location
	weekStart time.Weekday
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService creates a new chat service
func NewService(store storage.Store, drafts Drafts, scorer Scorer, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Defaults.Summary == "" {
		cfg.Defaults = storage.DefaultSessionDefaults()
	}

	return &Service{
		store:     store,
		drafts:    drafts,
		scorer:    scorer,
		defaults:  cfg.Defaults,
		location:  cfg.Location,
		weekStart: cfg.WeekStart,
		now:       time.Now,
		logger:    logger.With().Str("component", "chat").Logger(),
	}
}

// Location returns the timezone calendar days are computed in.
func (s *Service) Location() *time.Location {
	return s.location
}

// Now returns the current time in the calendar timezone.
func (s *Service) Now() time.Time {
	return s.now().In(s.location)
}

// Started is the result of opening a new chat session.
type Started struct {
	Session  *storage.Session `json:"session"`
	Greeting string           `json:"greeting"`
}

// StartSession registers the device and creates a fresh session for it.
func (s *Service) StartSession(ctx context.Context, deviceID string) (*Started, error) {
	if _, err := s.store.Devices().Register(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}

	session, err := s.store.Sessions().Create(ctx, deviceID, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	metrics.SessionsStarted.Inc()

	s.logger.Info().
		Str("session_id", session.ID).
		Str("device_id", deviceID).
		Msg("Chat session started")

	return &Started{Session: session, Greeting: Greeting(s.Now())}, nil
}

// Greeting returns the opening message for a chat started at t.
func Greeting(t time.Time) string {
	var part string
	switch h := t.Hour(); {
	case h < 12:
		part = "Good morning"
	case h < 18:
		part = "Good afternoon"
	default:
		part = "Good evening"
	}
	return part + "! How are you feeling today?"
}

// Session returns a stored session owned by deviceID.
func (s *Service) Session(ctx context.Context, deviceID, sessionID string) (*storage.Session, error) {
	session, err := s.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.DeviceID != deviceID {
		return nil, storage.ErrNotFound
	}
	return session, nil
}

// Draft returns the pending draft for a session, if any.
func (s *Service) Draft(sessionID string) (coalesce.Draft, bool) {
	return s.drafts.Pending(sessionID)
}

// PendingDrafts returns the number of sessions with unwritten drafts.
func (s *Service) PendingDrafts() int {
	return s.drafts.Len()
}

// Reply is the response to one chat turn.
type Reply struct {
	BotResponse string    `json:"bot_response"`
	Summary     string    `json:"summary"`
	Mood        MoodScore `json:"mood"`
	SessionID   string    `json:"session_id"`
	Degraded    bool      `json:"degraded,omitempty"`
}

// MoodScore is the analyzed mood of the latest message.
type MoodScore struct {
	Score int    `json:"score"`
	Label string `json:"label"`
}

// HandleMessage analyzes text and schedules the session draft. Once the
// message is accepted a reply is always returned, even when scoring or
// scheduling degrade.
func (s *Service) HandleMessage(ctx context.Context, deviceID, sessionID string, history []mood.Message, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	if _, err := s.Session(ctx, deviceID, sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		// The store being unreachable must not stop the conversation
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Could not verify session, continuing")
	}

	metrics.MessagesTotal.Inc()

	result, degraded := s.scorer.Analyze(ctx, history, text)

	err := s.drafts.RequestUpdate(sessionID, coalesce.Update{
		Summary:   result.Summary,
		MoodScore: result.MoodScore,
		MoodLabel: result.MoodLabel,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to schedule session update")
	}

	return &Reply{
		BotResponse: result.Response,
		Summary:     result.Summary,
		Mood:        MoodScore{Score: result.MoodScore, Label: result.MoodLabel},
		SessionID:   sessionID,
		Degraded:    degraded,
	}, nil
}

// FlushSession writes the session's pending draft now. It reports whether a
// draft was pending.
func (s *Service) FlushSession(ctx context.Context, deviceID, sessionID string) (bool, error) {
	if _, err := s.Session(ctx, deviceID, sessionID); err != nil {
		return false, err
	}
	if _, ok := s.drafts.Pending(sessionID); !ok {
		return false, nil
	}
	if err := s.drafts.Flush(ctx, sessionID); err != nil {
		return true, err
	}
	return true, nil
}

// DiscardDraft drops the session's pending draft without writing it.
func (s *Service) DiscardDraft(ctx context.Context, deviceID, sessionID string) (bool, error) {
	if _, err := s.Session(ctx, deviceID, sessionID); err != nil {
		return false, err
	}
	return s.drafts.Cancel(sessionID), nil
}

// DeleteSession abandons any pending draft and removes the session.
func (s *Service) DeleteSession(ctx context.Context, deviceID, sessionID string) error {
	if _, err := s.Session(ctx, deviceID, sessionID); err != nil {
		return err
	}

	s.drafts.Cancel(sessionID)

	if err := s.store.Sessions().Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.logger.Info().Str("session_id", sessionID).Str("device_id", deviceID).Msg("Chat session deleted")
	return nil
}

// MonthView is a month grid plus navigation anchors.
type MonthView struct {
	Month     string               `json:"month"`
	Prev      string               `json:"prev"`
	Next      string               `json:"next"`
	WeekStart string               `json:"week_start"`
	Days      []calendar.DayBucket `json:"days"`
}

// Month loads the device's sessions and builds the grid for month.
func (s *Service) Month(ctx context.Context, deviceID string, month time.Time) (*MonthView, error) {
	sessions, err := s.store.Sessions().ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	anchor := calendar.StartOfMonth(month.In(s.location))
	return &MonthView{
		Month:     anchor.Format("2006-01"),
		Prev:      calendar.PrevMonth(anchor).Format("2006-01"),
		Next:      calendar.NextMonth(anchor).Format("2006-01"),
		WeekStart: strings.ToLower(s.weekStart.String()),
		Days:      calendar.MonthGridFrom(anchor, sessions, s.weekStart),
	}, nil
}

// Day loads the device's sessions and summarizes date's day.
func (s *Service) Day(ctx context.Context, deviceID string, date time.Time) (calendar.DayBucket, error) {
	sessions, err := s.store.Sessions().ListByDevice(ctx, deviceID)
	if err != nil {
		return calendar.DayBucket{}, fmt.Errorf("list sessions: %w", err)
	}
	return calendar.SummarizeDay(sessions, date.In(s.location)), nil
}
