package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestCreateSessionScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	sessionKey := "moodchat:session:session-1"
	deviceIndex := "moodchat:device:device-1:sessions"
	start := "2025-03-10T09:00:00Z"

	result := client.Eval(ctx, createSessionScript, []string{sessionKey, deviceIndex},
		"session-1", "device-1", start, 1741597200000, "User has just started the conversation.", "50")
	if result.Err() != nil {
		t.Fatalf("Script execution failed: %v", result.Err())
	}

	data := client.HGetAll(ctx, sessionKey).Val()
	if data["device_id"] != "device-1" {
		t.Errorf("Expected device_id=device-1, got %s", data["device_id"])
	}
	if data["end_time"] != start {
		t.Errorf("Expected end_time to equal start_time, got %s", data["end_time"])
	}
	if data["mood_score"] != "50" {
		t.Errorf("Expected mood_score=50, got %s", data["mood_score"])
	}

	if !client.SIsMember(ctx, deviceIndex, "session-1").Val() {
		t.Error("Session should be indexed under its device")
	}

	// Creating the same session twice is rejected
	result = client.Eval(ctx, createSessionScript, []string{sessionKey, deviceIndex},
		"session-1", "device-1", start, 1741597200000, "again", "50")
	if result.Err() == nil {
		t.Fatal("Expected error when creating an existing session")
	}
	if got := client.HGet(ctx, sessionKey, "summary").Val(); got != "User has just started the conversation." {
		t.Errorf("Existing session should be untouched, got summary %q", got)
	}
}

func TestUpdateFinalScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	sessionKey := "moodchat:session:session-1"
	deviceIndex := "moodchat:device:device-1:sessions"
	start := "2025-03-10T09:00:00Z"
	startMs := int64(1741597200000)

	if err := client.Eval(ctx, createSessionScript, []string{sessionKey, deviceIndex},
		"session-1", "device-1", start, startMs, "initial", "50").Err(); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	tests := []struct {
		name        string
		endTime     string
		endMs       int64
		summary     string
		score       string
		label       string
		wantEnd     string
		wantLabel   string
		wantSummary string
	}{
		{
			name:        "normal update",
			endTime:     "2025-03-10T09:35:00Z",
			endMs:       startMs + 35*60*1000,
			summary:     "User is expressing generally positive emotions in this conversation.",
			score:       "70",
			label:       "content",
			wantEnd:     "2025-03-10T09:35:00Z",
			wantLabel:   "content",
			wantSummary: "User is expressing generally positive emotions in this conversation.",
		},
		{
			name:        "empty label keeps previous label",
			endTime:     "2025-03-10T09:40:00Z",
			endMs:       startMs + 40*60*1000,
			summary:     "second",
			score:       "40",
			label:       "",
			wantEnd:     "2025-03-10T09:40:00Z",
			wantLabel:   "content",
			wantSummary: "second",
		},
		{
			name:        "end before start is clamped",
			endTime:     "2025-03-10T08:00:00Z",
			endMs:       startMs - 60*60*1000,
			summary:     "third",
			score:       "10",
			label:       "distressed",
			wantEnd:     start,
			wantLabel:   "distressed",
			wantSummary: "third",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := client.Eval(ctx, updateFinalScript, []string{sessionKey},
				tt.endTime, tt.endMs, tt.summary, tt.score, tt.label)
			if result.Err() != nil {
				t.Fatalf("Script execution failed: %v", result.Err())
			}

			data := client.HGetAll(ctx, sessionKey).Val()
			if data["end_time"] != tt.wantEnd {
				t.Errorf("Expected end_time=%s, got %s", tt.wantEnd, data["end_time"])
			}
			if data["mood_score"] != tt.score {
				t.Errorf("Expected mood_score=%s, got %s", tt.score, data["mood_score"])
			}
			if data["mood_label"] != tt.wantLabel {
				t.Errorf("Expected mood_label=%s, got %s", tt.wantLabel, data["mood_label"])
			}
			if data["summary"] != tt.wantSummary {
				t.Errorf("Expected summary=%s, got %s", tt.wantSummary, data["summary"])
			}
		})
	}
}

func TestUpdateFinalScript_MissingSession(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	err := client.Eval(ctx, updateFinalScript, []string{"moodchat:session:missing"},
		"2025-03-10T09:35:00Z", 1741599300000, "summary", "60", "content").Err()
	if err == nil {
		t.Fatal("Expected NOT_FOUND error")
	}
	if !isScriptError(err, "NOT_FOUND") {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}

	if client.Exists(ctx, "moodchat:session:missing").Val() != 0 {
		t.Error("Script must not create a missing session")
	}
}

func TestRegisterDeviceScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()
	deviceKey := "moodchat:device:device-1"

	first := "2025-03-10T09:00:00Z"
	second := "2025-03-11T10:00:00Z"

	if err := client.Eval(ctx, registerDeviceScript, []string{deviceKey}, "device-1", first).Err(); err != nil {
		t.Fatalf("First registration failed: %v", err)
	}
	if err := client.Eval(ctx, registerDeviceScript, []string{deviceKey}, "device-1", second).Err(); err != nil {
		t.Fatalf("Second registration failed: %v", err)
	}

	data := client.HGetAll(ctx, deviceKey).Val()
	if data["created_at"] != first {
		t.Errorf("Expected created_at=%s, got %s", first, data["created_at"])
	}
	if data["last_seen"] != second {
		t.Errorf("Expected last_seen=%s, got %s", second, data["last_seen"])
	}
}
