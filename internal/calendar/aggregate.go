// Package calendar derives per-day mood statistics from stored sessions.
// Every function is pure and safe for concurrent use.
package calendar

import (
	"slices"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
)

// Trend compares a day's first and last scored session.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
	TrendNone Trend = "none"
)

// Arrow returns a one-character glyph for the trend.
func (t Trend) Arrow() string {
	switch t {
	case TrendUp:
		return "↑"
	case TrendDown:
		return "↓"
	case TrendFlat:
		return "→"
	default:
		return " "
	}
}

// StartOfDay returns the first instant of t's civil day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return startOfDay(y, m, d, t.Location())
}

// startOfDay normalizes y-m-d (d may overflow the month) and returns the
// first instant of that day in loc. When a DST change skips midnight,
// time.Date can land on the previous day; the day then starts at the
// transition.
func startOfDay(y int, m time.Month, d int, loc *time.Location) time.Time {
	y, m, d = time.Date(y, m, d, 12, 0, 0, 0, loc).Date()
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if !sameDay(t, y, m, d) {
		_, t = t.ZoneBounds()
	}
	return t
}

func sameDay(t time.Time, y int, m time.Month, d int) bool {
	ty, tm, td := t.Date()
	return ty == y && tm == m && td == d
}

// SessionsOnDate returns the sessions whose start time falls on date's civil
// day in date's location, [00:00:00.000, 23:59:59.999], ordered by start
// time. Sessions without a start time are skipped.
func SessionsOnDate(sessions []storage.Session, date time.Time) []storage.Session {
	y, m, d := date.Date()
	loc := date.Location()

	var out []storage.Session
	for _, s := range sessions {
		if s.StartTime.IsZero() {
			continue
		}
		if !sameDay(s.StartTime.In(loc), y, m, d) {
			continue
		}
		out = append(out, s)
	}

	sortByStart(out)
	return out
}

func sortByStart(sessions []storage.Session) {
	slices.SortStableFunc(sessions, func(a, b storage.Session) int {
		return a.StartTime.Compare(b.StartTime)
	})
}

// AverageMood returns the mean score of the scored sessions rounded to the
// nearest integer (halves round up), or 0 when none are scored.
func AverageMood(sessions []storage.Session) int {
	sum, n := 0, 0
	for _, s := range sessions {
		if !s.Scored() {
			continue
		}
		sum += s.Score()
		n++
	}
	if n == 0 {
		return 0
	}
	return (2*sum + n) / (2 * n)
}

// ComputeTrend compares the earliest and latest scored sessions. Intermediate
// scores are ignored.
func ComputeTrend(sessions []storage.Session) Trend {
	scored := make([]storage.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Scored() {
			scored = append(scored, s)
		}
	}
	if len(scored) < 2 {
		return TrendNone
	}

	sortByStart(scored)
	first := scored[0].Score()
	last := scored[len(scored)-1].Score()

	switch {
	case last > first:
		return TrendUp
	case last < first:
		return TrendDown
	default:
		return TrendFlat
	}
}
