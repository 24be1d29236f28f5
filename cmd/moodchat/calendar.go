package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/moodchat/internal/calendar"
	"github.com/goodtune/moodchat/internal/config"
	"github.com/spf13/cobra"
)

var (
	calendarDevice string
	calendarMonth  string
	calendarDay    string
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Print a device's mood calendar",
	Long: `Print the month grid of mood bands for a device, read straight from the
configured store. Pending drafts held by a running server are not included.`,
	RunE: runCalendar,
}

func init() {
	calendarCmd.Flags().StringVar(&calendarDevice, "device", "", "Device ID (required)")
	calendarCmd.Flags().StringVar(&calendarMonth, "month", "", "Month to show as YYYY-MM (default: current month)")
	calendarCmd.Flags().StringVar(&calendarDay, "day", "", "Show the sessions of one day, YYYY-MM-DD")
	_ = calendarCmd.MarkFlagRequired("device")
	rootCmd.AddCommand(calendarCmd)
}

func runCalendar(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	location, err := cfg.Calendar.Location()
	if err != nil {
		return err
	}
	weekStart, err := cfg.Calendar.FirstWeekday()
	if err != nil {
		return err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	sessions, err := store.Sessions().ListByDevice(context.Background(), calendarDevice)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	out := cmd.OutOrStdout()

	if calendarDay != "" {
		date, err := calendar.ParseDay(calendarDay, location)
		if err != nil {
			return err
		}
		renderDay(out, calendar.SummarizeDay(sessions, date))
		return nil
	}

	anchor := time.Now().In(location)
	if calendarMonth != "" {
		anchor, err = calendar.ParseMonth(calendarMonth, location)
		if err != nil {
			return err
		}
	}

	renderMonth(out, anchor, calendar.MonthGridFrom(anchor, sessions, weekStart), weekStart)
	return nil
}

var bandColors = map[calendar.Band]*color.Color{
	calendar.BandEmpty:   color.New(color.FgHiBlack),
	calendar.BandZero:    color.New(color.FgWhite, color.BgRed),
	calendar.BandVeryLow: color.New(color.FgRed, color.Bold),
	calendar.BandLow:     color.New(color.FgYellow),
	calendar.BandNeutral: color.New(color.FgWhite),
	calendar.BandGood:    color.New(color.FgGreen),
	calendar.BandGreat:   color.New(color.FgGreen, color.Bold),
}

func bandColor(b calendar.Band) *color.Color {
	if c, ok := bandColors[b]; ok {
		return c
	}
	return color.New(color.Reset)
}

// renderMonth prints one row per week. Each cell is the day of month, the
// average score and the trend arrow.
func renderMonth(w io.Writer, anchor time.Time, days []calendar.DayBucket, weekStart time.Weekday) {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintf(w, "%s\n", anchor.Format("January 2006"))

	for _, wd := range calendar.Weekdays(weekStart) {
		_, _ = fmt.Fprintf(w, " %-8s", wd.String()[:3])
	}
	_, _ = fmt.Fprintln(w)

	for i, day := range days {
		cell := fmt.Sprintf("%2d", day.Date.Day())
		if day.HasSessions() {
			cell += fmt.Sprintf(" %3d%s", day.AverageMoodScore, day.Trend.Arrow())
		}
		cell = fmt.Sprintf(" %-8s", cell)

		if day.IsCurrentMonth {
			_, _ = bandColor(day.Band).Fprint(w, cell)
		} else {
			_, _ = color.New(color.Faint).Fprint(w, cell)
		}

		if i%7 == 6 {
			_, _ = fmt.Fprintln(w)
		}
	}

	_, _ = fmt.Fprintln(w)
	var legend []string
	for _, b := range []calendar.Band{
		calendar.BandGreat, calendar.BandGood, calendar.BandNeutral,
		calendar.BandLow, calendar.BandVeryLow, calendar.BandZero,
	} {
		legend = append(legend, bandColor(b).Sprint(string(b)))
	}
	_, _ = fmt.Fprintf(w, "Bands: %s\n", strings.Join(legend, " "))
}

func renderDay(w io.Writer, day calendar.DayBucket) {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintf(w, "%s\n", day.Date.Format("Monday, 2 January 2006"))

	if !day.HasSessions() {
		_, _ = fmt.Fprintln(w, "No sessions.")
		return
	}

	_, _ = bandColor(day.Band).Fprintf(w, "Average mood %d %s (%s)\n", day.AverageMoodScore, day.Trend.Arrow(), day.Band)

	for _, s := range day.Sessions {
		score := "-"
		if s.Scored() {
			score = fmt.Sprintf("%d", s.Score())
		}
		status := ""
		if s.InProgress() {
			status = " (in progress)"
		}
		band := calendar.BandFor(s.Score(), true)
		_, _ = bandColor(band).Fprintf(w, "  %s  %3s  %s%s\n",
			s.StartTime.In(day.Date.Location()).Format("15:04"), score, s.Summary, status)
	}
}
