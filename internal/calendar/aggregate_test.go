package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/goodtune/moodchat/internal/storage"
)

func session(id string, start time.Time, score *int) storage.Session {
	return storage.Session{ID: id, DeviceID: "device-a", StartTime: start, MoodScore: score}
}

func scored(id string, start time.Time, score int) storage.Session {
	return session(id, start, storage.IntPtr(score))
}

func TestSessionsOnDateBoundary(t *testing.T) {
	loc := time.UTC
	day := time.Date(2025, 3, 10, 15, 0, 0, 0, loc)

	lastMs := time.Date(2025, 3, 10, 23, 59, 59, 999_000_000, loc)
	sessions := []storage.Session{
		scored("midnight", time.Date(2025, 3, 10, 0, 0, 0, 0, loc), 50),
		scored("last-ms", lastMs, 50),
		scored("next-day", lastMs.Add(time.Millisecond), 50),
		scored("prev-day", time.Date(2025, 3, 9, 23, 59, 59, 999_000_000, loc), 50),
		{ID: "no-time", MoodScore: storage.IntPtr(50)},
	}

	got := SessionsOnDate(sessions, day)
	if len(got) != 2 || got[0].ID != "midnight" || got[1].ID != "last-ms" {
		t.Fatalf("unexpected sessions for day: %+v", got)
	}

	next := SessionsOnDate(sessions, day.AddDate(0, 0, 1))
	if len(next) != 1 || next[0].ID != "next-day" {
		t.Fatalf("unexpected sessions for next day: %+v", next)
	}
}

func TestSessionsOnDateUsesDateLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	// 20:00 UTC on the 9th is 06:00 on the 10th in UTC+10
	s := scored("s1", time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC), 70)

	if got := SessionsOnDate([]storage.Session{s}, time.Date(2025, 3, 10, 0, 0, 0, 0, loc)); len(got) != 1 {
		t.Fatalf("expected session on the 10th in UTC+10, got %d", len(got))
	}
	if got := SessionsOnDate([]storage.Session{s}, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)); len(got) != 1 {
		t.Fatalf("expected session on the 9th in UTC, got %d", len(got))
	}
}

func loadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestSessionsOnDateMidnightDSTStart(t *testing.T) {
	// Chile springs forward at 00:00 on 2024-09-08; the day starts at 01:00
	loc := loadLocation(t, "America/Santiago")
	date := time.Date(2024, 9, 8, 12, 0, 0, 0, loc)

	start := StartOfDay(date)
	if y, m, d := start.Date(); y != 2024 || m != time.September || d != 8 || start.Hour() != 1 {
		t.Fatalf("unexpected start of day: %v", start)
	}

	sessions := []storage.Session{
		scored("late", time.Date(2024, 9, 8, 23, 30, 0, 0, loc), 60),
		scored("prev", time.Date(2024, 9, 7, 23, 30, 0, 0, loc), 20),
		scored("first", start, 40),
		scored("before-first", start.Add(-time.Millisecond), 80),
	}

	got := SessionsOnDate(sessions, date)
	if len(got) != 2 || got[0].ID != "first" || got[1].ID != "late" {
		t.Fatalf("unexpected sessions for 2024-09-08: %+v", got)
	}

	prev := SessionsOnDate(sessions, time.Date(2024, 9, 7, 12, 0, 0, 0, loc))
	if len(prev) != 2 || prev[0].ID != "prev" || prev[1].ID != "before-first" {
		t.Fatalf("unexpected sessions for 2024-09-07: %+v", prev)
	}
}

func TestAverageAndTrendScenario(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	sessions := []storage.Session{
		scored("c", base.Add(10*time.Minute), 70),
		scored("a", base, 40),
		scored("b", base.Add(5*time.Minute), 70),
	}

	if avg := AverageMood(sessions); avg != 60 {
		t.Fatalf("expected average 60, got %d", avg)
	}
	if trend := ComputeTrend(sessions); trend != TrendUp {
		t.Fatalf("expected trend up, got %s", trend)
	}
}

func TestAverageMood(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		sessions []storage.Session
		want     int
	}{
		{"empty", nil, 0},
		{"unscored only", []storage.Session{session("a", base, nil)}, 0},
		{"single", []storage.Session{scored("a", base, 33)}, 33},
		{"half rounds up", []storage.Session{scored("a", base, 50), scored("b", base, 51)}, 51},
		{"rounds down", []storage.Session{scored("a", base, 10), scored("b", base, 10), scored("c", base, 11)}, 10},
		{"ignores unscored", []storage.Session{scored("a", base, 80), session("b", base, nil)}, 80},
		{"all zero", []storage.Session{scored("a", base, 0), scored("b", base, 0)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AverageMood(tt.sessions); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestComputeTrend(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		sessions []storage.Session
		want     Trend
	}{
		{"empty", nil, TrendNone},
		{"single scored", []storage.Session{scored("a", base, 40)}, TrendNone},
		{"one scored one unscored", []storage.Session{scored("a", base, 40), session("b", base.Add(time.Minute), nil)}, TrendNone},
		{"down", []storage.Session{scored("a", base, 70), scored("b", base.Add(time.Minute), 20)}, TrendDown},
		{"flat ignores middle", []storage.Session{
			scored("a", base, 50),
			scored("b", base.Add(time.Minute), 100),
			scored("c", base.Add(2*time.Minute), 50),
		}, TrendFlat},
		{"unsorted input", []storage.Session{scored("late", base.Add(time.Hour), 10), scored("early", base, 90)}, TrendDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeTrend(tt.sessions); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		score       int
		hasSessions bool
		want        Band
	}{
		{0, false, BandEmpty},
		{75, false, BandEmpty},
		{0, true, BandZero},
		{1, true, BandVeryLow},
		{19, true, BandVeryLow},
		{20, true, BandLow},
		{39, true, BandLow},
		{40, true, BandNeutral},
		{59, true, BandNeutral},
		{60, true, BandGood},
		{79, true, BandGood},
		{80, true, BandGreat},
		{100, true, BandGreat},
	}

	for _, tt := range tests {
		if got := BandFor(tt.score, tt.hasSessions); got != tt.want {
			t.Errorf("BandFor(%d, %v) = %s, want %s", tt.score, tt.hasSessions, got, tt.want)
		}
	}
}
