package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/moodchat/internal/config"
	"github.com/goodtune/moodchat/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays 0
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSessionStore_CreateDefaults(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	start := time.Date(2025, 3, 10, 9, 0, 0, 123456789, time.UTC)
	store.sessionStore.now = fixedClock(start)

	created, err := store.Sessions().Create(ctx, "device-1", storage.DefaultSessionDefaults())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Sessions().Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	wantStart := start.Truncate(time.Millisecond)
	if !got.StartTime.Equal(wantStart) {
		t.Errorf("Expected start %v, got %v", wantStart, got.StartTime)
	}
	if got.EndTime == nil || !got.EndTime.Equal(got.StartTime) {
		t.Errorf("Expected end time equal to start time, got %v", got.EndTime)
	}
	if !got.InProgress() {
		t.Error("New session should be in progress")
	}
	if got.Score() != storage.NeutralMoodScore {
		t.Errorf("Expected score %d, got %d", storage.NeutralMoodScore, got.Score())
	}
	if got.Summary != storage.DefaultInitialSummary {
		t.Errorf("Expected default summary, got %q", got.Summary)
	}
}

func TestSessionStore_UpdateFinal(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store.sessionStore.now = fixedClock(start)

	created, err := store.Sessions().Create(ctx, "device-1", storage.DefaultSessionDefaults())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	end := start.Add(35 * time.Minute)
	updated, err := store.Sessions().UpdateFinal(ctx, created.ID, storage.FinalUpdate{
		EndTime:   end,
		Summary:   "second draft",
		MoodScore: 72,
		MoodLabel: "content",
	})
	if err != nil {
		t.Fatalf("UpdateFinal failed: %v", err)
	}

	if updated.Summary != "second draft" {
		t.Errorf("Expected summary 'second draft', got %q", updated.Summary)
	}
	if updated.Score() != 72 {
		t.Errorf("Expected score 72, got %d", updated.Score())
	}
	if updated.MoodLabel != "content" {
		t.Errorf("Expected label content, got %q", updated.MoodLabel)
	}
	if updated.EndTime == nil || !updated.EndTime.Equal(end) {
		t.Errorf("Expected end %v, got %v", end, updated.EndTime)
	}
	if updated.InProgress() {
		t.Error("Flushed session should not be in progress")
	}
}

func TestSessionStore_UpdateFinalClampsEndTime(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store.sessionStore.now = fixedClock(start)

	created, err := store.Sessions().Create(ctx, "device-1", storage.DefaultSessionDefaults())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := store.Sessions().UpdateFinal(ctx, created.ID, storage.FinalUpdate{
		EndTime:   start.Add(-time.Hour),
		Summary:   "clock skew",
		MoodScore: 40,
	})
	if err != nil {
		t.Fatalf("UpdateFinal failed: %v", err)
	}

	if updated.EndTime == nil || updated.EndTime.Before(updated.StartTime) {
		t.Errorf("End time %v precedes start time %v", updated.EndTime, updated.StartTime)
	}
}

func TestSessionStore_UpdateFinalErrors(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	_, err := store.Sessions().UpdateFinal(ctx, "missing", storage.FinalUpdate{
		EndTime:   time.Now(),
		Summary:   "nobody home",
		MoodScore: 50,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	created, err := store.Sessions().Create(ctx, "device-1", storage.DefaultSessionDefaults())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = store.Sessions().UpdateFinal(ctx, created.ID, storage.FinalUpdate{
		EndTime:   time.Now(),
		Summary:   "too happy",
		MoodScore: 101,
	})
	if err == nil {
		t.Fatal("Expected error for out of range score")
	}

	got, err := store.Sessions().Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Score() != storage.NeutralMoodScore {
		t.Errorf("Rejected update must not be written, got score %d", got.Score())
	}
}

func TestSessionStore_ListByDeviceAndDelete(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	sessions := store.Sessions()

	first, err := sessions.Create(ctx, "device-1", storage.DefaultSessionDefaults())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := sessions.Create(ctx, "device-1", storage.DefaultSessionDefaults()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := sessions.Create(ctx, "device-2", storage.DefaultSessionDefaults()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err := sessions.ListByDevice(ctx, "device-1")
	if err != nil {
		t.Fatalf("ListByDevice failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(list))
	}

	if err := sessions.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := sessions.Delete(ctx, first.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}

	list, err = sessions.ListByDevice(ctx, "device-1")
	if err != nil {
		t.Fatalf("ListByDevice failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 session after delete, got %d", len(list))
	}

	list, err = sessions.ListByDevice(ctx, "unknown")
	if err != nil {
		t.Fatalf("ListByDevice failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("Expected no sessions for unknown device, got %d", len(list))
	}
}

func TestDeviceStore_Register(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	first := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	store.deviceStore.now = fixedClock(first)
	if _, err := store.Devices().Register(ctx, "device-1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	store.deviceStore.now = fixedClock(second)
	device, err := store.Devices().Register(ctx, "device-1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if !device.CreatedAt.Equal(first) {
		t.Errorf("Expected created_at %v, got %v", first, device.CreatedAt)
	}
	if !device.LastSeen.Equal(second) {
		t.Errorf("Expected last_seen %v, got %v", second, device.LastSeen)
	}

	if _, err := store.Devices().Get(ctx, "unknown"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
