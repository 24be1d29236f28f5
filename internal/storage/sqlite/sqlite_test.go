package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "moodchat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestSessionStoreCreateAndGet(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	start := time.Date(2025, 3, 10, 9, 0, 0, 987654321, time.UTC)
	store.now = func() time.Time { return start }

	ctx := context.Background()
	session, err := store.Sessions().Create(ctx, "device-a", storage.DefaultSessionDefaults())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := store.Sessions().Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.StartTime.Equal(start.Truncate(time.Millisecond)) {
		t.Fatalf("expected start %v, got %v", start.Truncate(time.Millisecond), got.StartTime)
	}
	if !got.InProgress() {
		t.Fatal("expected new session to be in progress")
	}
	if got.Score() != storage.NeutralMoodScore || got.Summary != storage.DefaultInitialSummary {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestSessionStoreUpdateFinal(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	session, err := store.Sessions().Create(ctx, "device-a", storage.DefaultSessionDefaults())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	end := session.StartTime.Add(35 * time.Minute)
	updated, err := store.Sessions().UpdateFinal(ctx, session.ID, storage.FinalUpdate{
		EndTime:   end,
		Summary:   "draft B",
		MoodScore: 70,
		MoodLabel: "content",
	})
	if err != nil {
		t.Fatalf("update final: %v", err)
	}
	if updated.Summary != "draft B" || updated.Score() != 70 || updated.MoodLabel != "content" {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.EndTime == nil || !updated.EndTime.Equal(end) {
		t.Fatalf("expected end %v, got %v", end, updated.EndTime)
	}

	// An empty label leaves the stored label alone
	updated, err = store.Sessions().UpdateFinal(ctx, session.ID, storage.FinalUpdate{
		EndTime:   end.Add(time.Minute),
		Summary:   "draft C",
		MoodScore: 20,
	})
	if err != nil {
		t.Fatalf("update final: %v", err)
	}
	if updated.MoodLabel != "content" {
		t.Fatalf("expected label to be kept, got %q", updated.MoodLabel)
	}
}

func TestSessionStoreUpdateFinalClampsEndTime(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	session, err := store.Sessions().Create(ctx, "device-a", storage.DefaultSessionDefaults())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	updated, err := store.Sessions().UpdateFinal(ctx, session.ID, storage.FinalUpdate{
		EndTime:   session.StartTime.Add(-time.Hour),
		Summary:   "skewed",
		MoodScore: 45,
	})
	if err != nil {
		t.Fatalf("update final: %v", err)
	}
	if updated.EndTime == nil || !updated.EndTime.Equal(updated.StartTime) {
		t.Fatalf("expected end clamped to start %v, got %v", updated.StartTime, updated.EndTime)
	}
}

func TestSessionStoreErrors(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if _, err := store.Sessions().Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err := store.Sessions().UpdateFinal(ctx, "missing", storage.FinalUpdate{
		EndTime:   time.Now(),
		MoodScore: 50,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	session, err := store.Sessions().Create(ctx, "device-a", storage.DefaultSessionDefaults())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := store.Sessions().UpdateFinal(ctx, session.ID, storage.FinalUpdate{
		EndTime:   time.Now(),
		MoodScore: -1,
	}); err == nil {
		t.Fatal("expected out of range score to be rejected")
	}
}

func TestSessionStoreListByDeviceAndDelete(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(2-i) * time.Hour)
		store.now = func() time.Time { return at }
		session, err := store.Sessions().Create(ctx, "device-a", storage.DefaultSessionDefaults())
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		ids = append(ids, session.ID)
	}
	if _, err := store.Sessions().Create(ctx, "device-b", storage.DefaultSessionDefaults()); err != nil {
		t.Fatalf("create session: %v", err)
	}

	list, err := store.Sessions().ListByDevice(ctx, "device-a")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	// Ordered by start time, so the last created (earliest) comes first
	if list[0].ID != ids[2] {
		t.Fatalf("expected %s first, got %s", ids[2], list[0].ID)
	}

	if err := store.Sessions().Delete(ctx, ids[0]); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := store.Sessions().Delete(ctx, ids[0]); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err = store.Sessions().ListByDevice(ctx, "device-a")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions after delete, got %d", len(list))
	}
}

func TestDeviceStoreRegister(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	first := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	second := first.Add(48 * time.Hour)

	store.now = func() time.Time { return first }
	if _, err := store.Devices().Register(ctx, "device-a"); err != nil {
		t.Fatalf("register device: %v", err)
	}

	store.now = func() time.Time { return second }
	device, err := store.Devices().Register(ctx, "device-a")
	if err != nil {
		t.Fatalf("register device: %v", err)
	}
	if !device.CreatedAt.Equal(first) || !device.LastSeen.Equal(second) {
		t.Fatalf("unexpected device timestamps: %+v", device)
	}

	if _, err := store.Devices().Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStorePing(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
