// Package mood scores chat turns. Analyzers may fail; Safe turns any failure
// into a neutral result so the conversation always gets a reply.
package mood

import (
	"context"
	"time"

	"github.com/goodtune/moodchat/internal/storage"
)

// Mood labels, from most to least positive
const (
	LabelHappy      = "happy"
	LabelContent    = "content"
	LabelNeutral    = "neutral"
	LabelSad        = "sad"
	LabelDistressed = "distressed"
)

// DefaultReply is sent when nothing more specific applies.
const DefaultReply = "Thank you for sharing. Can you tell me more about how you're feeling?"

// Message is one turn of the conversation history.
type Message struct {
	Text      string    `json:"text"`
	IsBot     bool      `json:"is_bot"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the outcome of analyzing the latest user message.
type Result struct {
	Response  string `json:"response"`
	Summary   string `json:"summary"`
	MoodScore int    `json:"mood_score"`
	MoodLabel string `json:"mood_label"`
}

// Valid reports whether the result can be used as a session draft.
func (r Result) Valid() bool {
	return r.Response != "" &&
		r.MoodScore >= storage.MinMoodScore &&
		r.MoodScore <= storage.MaxMoodScore
}

// Analyzer produces a reply, conversation summary and mood score.
type Analyzer interface {
	Analyze(ctx context.Context, history []Message, latest string) (Result, error)
}

// LabelFor maps a score to its mood label.
func LabelFor(score int) string {
	switch {
	case score >= 75:
		return LabelHappy
	case score >= 60:
		return LabelContent
	case score >= 40:
		return LabelNeutral
	case score >= 25:
		return LabelSad
	default:
		return LabelDistressed
	}
}

// Neutral returns the result used when analysis is unavailable.
func Neutral() Result {
	return Result{
		Response:  DefaultReply,
		Summary:   "Mood analysis is unavailable for this conversation.",
		MoodScore: storage.NeutralMoodScore,
		MoodLabel: LabelNeutral,
	}
}

func clampScore(score int) int {
	return max(storage.MinMoodScore, min(storage.MaxMoodScore, score))
}
