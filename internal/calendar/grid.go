package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
)

const (
	monthLayout = "2006-01"
	dayLayout   = "2006-01-02"
)

// DayBucket aggregates the sessions started on one calendar day.
type DayBucket struct {
	Date             time.Time         `json:"date"`
	Sessions         []storage.Session `json:"sessions"`
	AverageMoodScore int               `json:"average_mood_score"`
	Trend            Trend             `json:"mood_trend"`
	Band             Band              `json:"band"`
	IsCurrentMonth   bool              `json:"is_current_month"`
}

// Key returns the bucket date as YYYY-MM-DD.
func (b DayBucket) Key() string {
	return b.Date.Format(dayLayout)
}

// HasSessions reports whether any session started on the bucket's day.
func (b DayBucket) HasSessions() bool {
	return len(b.Sessions) > 0
}

// SummarizeDay builds the bucket for date's local day.
func SummarizeDay(sessions []storage.Session, date time.Time) DayBucket {
	day := SessionsOnDate(sessions, date)
	if day == nil {
		day = []storage.Session{}
	}

	avg := AverageMood(day)
	return DayBucket{
		Date:             StartOfDay(date),
		Sessions:         day,
		AverageMoodScore: avg,
		Trend:            ComputeTrend(day),
		Band:             BandFor(avg, len(day) > 0),
		IsCurrentMonth:   true,
	}
}

// MonthGrid returns one bucket per calendar cell for anchor's month, weeks
// starting on Sunday.
func MonthGrid(anchor time.Time, sessions []storage.Session) []DayBucket {
	return MonthGridFrom(anchor, sessions, time.Sunday)
}

// MonthGridFrom returns the buckets from the first day of the week holding the
// 1st of anchor's month through the last day of the week holding the month's
// last day. The grid is not padded to six rows.
func MonthGridFrom(anchor time.Time, sessions []storage.Session, weekStart time.Weekday) []DayBucket {
	y, month, _ := anchor.Date()
	loc := anchor.Location()
	lead, cells := gridSpan(y, month, weekStart)

	// Narrow the input once so each cell scans only the visible range
	first := startOfDay(y, month, 1-lead, loc)
	end := startOfDay(y, month, 1-lead+cells, loc)
	visible := make([]storage.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.StartTime.IsZero() || s.StartTime.Before(first) || !s.StartTime.Before(end) {
			continue
		}
		visible = append(visible, s)
	}

	grid := make([]DayBucket, 0, cells)
	for i := range cells {
		// Cells step by civil date; noon always exists
		day := time.Date(y, month, 1-lead+i, 12, 0, 0, 0, loc)
		bucket := SummarizeDay(visible, day)
		bucket.IsCurrentMonth = day.Month() == month
		grid = append(grid, bucket)
	}

	return grid
}

// gridSpan returns how many days of the previous month lead the grid and the
// total number of cells.
func gridSpan(y int, m time.Month, weekStart time.Weekday) (lead, cells int) {
	days := time.Date(y, m+1, 0, 12, 0, 0, 0, time.UTC).Day()
	firstWeekday := time.Date(y, m, 1, 12, 0, 0, 0, time.UTC).Weekday()
	lastWeekday := time.Date(y, m, days, 12, 0, 0, 0, time.UTC).Weekday()

	lead = (int(firstWeekday) - int(weekStart) + 7) % 7
	trail := ((int(weekStart)+6)%7 - int(lastWeekday) + 7) % 7
	return lead, lead + days + trail
}

// GridBounds returns the first and last visible day of anchor's month grid.
func GridBounds(anchor time.Time, weekStart time.Weekday) (time.Time, time.Time) {
	y, m, _ := anchor.Date()
	lead, cells := gridSpan(y, m, weekStart)
	return startOfDay(y, m, 1-lead, anchor.Location()), startOfDay(y, m, cells-lead, anchor.Location())
}

// Weekdays returns the seven weekdays in grid column order.
func Weekdays(weekStart time.Weekday) []time.Weekday {
	days := make([]time.Weekday, 7)
	for i := range days {
		days[i] = time.Weekday((int(weekStart) + i) % 7)
	}
	return days
}

// StartOfMonth returns the first instant of the 1st of t's month in t's location.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return startOfDay(y, m, 1, t.Location())
}

// PrevMonth returns the 1st of the month before anchor's.
func PrevMonth(anchor time.Time) time.Time {
	y, m, _ := anchor.Date()
	return startOfDay(y, m-1, 1, anchor.Location())
}

// NextMonth returns the 1st of the month after anchor's.
func NextMonth(anchor time.Time) time.Time {
	y, m, _ := anchor.Date()
	return startOfDay(y, m+1, 1, anchor.Location())
}

// ParseMonth parses YYYY-MM and returns the start of that month in loc.
func ParseMonth(s string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", s, err)
	}
	return startOfDay(t.Year(), t.Month(), 1, loc), nil
}

// ParseDay parses YYYY-MM-DD and returns the start of that day in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(dayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	y, m, d := t.Date()
	return startOfDay(y, m, d, loc), nil
}
