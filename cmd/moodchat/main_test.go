package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/moodchat/internal/calendar"
	"github.com/goodtune/moodchat/internal/config"
	"github.com/goodtune/moodchat/internal/storage"
	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestFindUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8081
  allowed_origins: ["https://mood.example"]
sessions:
  inactivity_window: 10m
  inactivty_window: 5m
scorer:
  api_key: sk-test
colour: blue
`)

	unknown, err := findUnknownKeys(path)
	if err != nil {
		t.Fatalf("findUnknownKeys: %v", err)
	}
	want := []string{"colour", "sessions.inactivty_window"}
	if strings.Join(unknown, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, unknown)
	}
}

func TestDumpConfigRedactsSecrets(t *testing.T) {
	color.NoColor = true

	cfg := getDefaultConfig()
	cfg.Scorer.APIKey = "sk-secret"
	cfg.Sessions.InactivityWindow = "10m"

	var buf bytes.Buffer
	dumpConfig(&buf, cfg, getDefaultConfig())
	out := buf.String()

	if strings.Contains(out, "sk-secret") {
		t.Fatal("api key leaked into dump")
	}
	if !strings.Contains(out, "[sessions]") {
		t.Fatalf("expected a sessions section, got:\n%s", out)
	}
	if !strings.Contains(out, "inactivity_window = 10m  (modified from default: 30m)") {
		t.Fatalf("expected modified window to be highlighted, got:\n%s", out)
	}
}

func TestOpenStorage(t *testing.T) {
	dir := t.TempDir()

	for _, typ := range []string{"bolt", "sqlite"} {
		t.Run(typ, func(t *testing.T) {
			store, err := openStorage(config.StorageConfig{Type: typ, Path: filepath.Join(dir, typ, "moodchat.db")})
			if err != nil {
				t.Fatalf("open %s: %v", typ, err)
			}
			defer func() { _ = store.Close() }()

			if err := store.Ping(context.Background()); err != nil {
				t.Fatalf("ping: %v", err)
			}
		})
	}

	if _, err := openStorage(config.StorageConfig{Type: "postgres"}); err == nil {
		t.Fatal("expected unsupported storage type to fail")
	}
}

func TestNewScorer(t *testing.T) {
	scorer, err := newScorer(config.ScorerConfig{Type: "heuristic"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("newScorer: %v", err)
	}
	if scorer.Name() != "heuristic" {
		t.Fatalf("expected heuristic scorer, got %s", scorer.Name())
	}

	if _, err := newScorer(config.ScorerConfig{Type: "openai"}, zerolog.Nop()); err == nil {
		t.Fatal("expected openai scorer without a model to fail")
	}
}

func TestCoalescerConfig(t *testing.T) {
	cfg := coalescerConfig(config.SessionsConfig{
		InactivityWindow:     "45m",
		FlushTimeout:         "bogus",
		RetryInitialInterval: "0",
		RetryMaxInterval:     "5m",
		Stripes:              16,
	})

	if cfg.Window != 45*time.Minute {
		t.Errorf("expected 45m window, got %v", cfg.Window)
	}
	if cfg.FlushTimeout != 10*time.Second {
		t.Errorf("expected fallback flush timeout, got %v", cfg.FlushTimeout)
	}
	if cfg.RetryInitialInterval != 0 {
		t.Errorf("expected retries disabled, got %v", cfg.RetryInitialInterval)
	}
	if cfg.Stripes != 16 {
		t.Errorf("expected 16 stripes, got %d", cfg.Stripes)
	}
}

func TestRenderMonth(t *testing.T) {
	color.NoColor = true

	anchor := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	sessions := []storage.Session{
		{ID: "a", StartTime: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), MoodScore: storage.IntPtr(40)},
		{ID: "b", StartTime: time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), MoodScore: storage.IntPtr(70)},
	}

	var buf bytes.Buffer
	renderMonth(&buf, anchor, calendar.MonthGridFrom(anchor, sessions, time.Sunday), time.Sunday)
	out := buf.String()

	if !strings.HasPrefix(out, "March 2025\n Sun") {
		t.Fatalf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "10  55↑") {
		t.Fatalf("expected day 10 with average 55 trending up, got:\n%s", out)
	}
}

func TestRenderDay(t *testing.T) {
	color.NoColor = true

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	day := calendar.SummarizeDay([]storage.Session{
		{ID: "a", StartTime: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), MoodScore: storage.IntPtr(70), Summary: "good morning"},
	}, date)

	var buf bytes.Buffer
	renderDay(&buf, day)

	if !strings.Contains(buf.String(), "09:00   70  good morning (in progress)") {
		t.Fatalf("unexpected day output:\n%s", buf.String())
	}

	buf.Reset()
	renderDay(&buf, calendar.SummarizeDay(nil, date))
	if !strings.Contains(buf.String(), "No sessions.") {
		t.Fatalf("expected empty day, got:\n%s", buf.String())
	}
}
