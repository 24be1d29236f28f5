package mood

import (
	"context"
	"strings"
)

const (
	summaryJustStarted = "Conversation just started."
	summaryPositive    = "User is expressing generally positive emotions in this conversation."
	summaryNegative    = "User is expressing some concerns or negative emotions in this conversation."
	summaryNeutral     = "User is expressing mainly neutral sentiments in this conversation."
	summaryMixed       = "Mixed emotional content in this conversation."
)

var (
	scorePositive = []string{"happy", "good", "great", "excellent", "wonderful", "pleased", "joy", "excitement"}
	scoreNegative = []string{"sad", "depressed", "unhappy", "anxious", "worried", "stressed", "angry", "upset"}

	summaryPositiveWords = []string{"happy", "good", "great", "excellent", "wonderful", "pleased"}
	summaryNegativeWords = []string{"sad", "depressed", "unhappy", "anxious", "worried", "stressed"}
	summaryNeutralWords  = []string{"okay", "fine", "alright", "so-so"}
)

// reply rules are checked in order; the first match wins
var replies = []struct {
	words []string
	reply string
}{
	{[]string{"hello", "hi"}, "Hello! How can I help you today?"},
	{[]string{"sad", "depressed"}, "I'm sorry to hear you're feeling down. Would you like to talk about what's bothering you?"},
	{[]string{"happy", "good"}, "I'm glad to hear you're doing well! What has been going well for you?"},
	{[]string{"anxious", "worried"}, "It sounds like you're experiencing some anxiety. Would it help to talk through what's on your mind?"},
}

// Heuristic is a keyword analyzer. Matching is by case-insensitive substring.
type Heuristic struct{}

// NewHeuristic creates a keyword analyzer
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Analyze never fails.
func (h *Heuristic) Analyze(_ context.Context, history []Message, latest string) (Result, error) {
	score := h.Score(latest)
	return Result{
		Response:  h.Reply(latest),
		Summary:   h.Summarize(history),
		MoodScore: score,
		MoodLabel: LabelFor(score),
	}, nil
}

// Reply picks a canned response for text.
func (h *Heuristic) Reply(text string) string {
	lower := strings.ToLower(text)
	for _, r := range replies {
		if containsAny(lower, r.words) {
			return r.reply
		}
	}
	return DefaultReply
}

// Score starts from neutral and moves 10 points per keyword found in text.
func (h *Heuristic) Score(text string) int {
	lower := strings.ToLower(text)
	score := 50
	score += 10 * countMatches(lower, scorePositive)
	score -= 10 * countMatches(lower, scoreNegative)
	return clampScore(score)
}

// Summarize classifies the user's side of history by keyword counts.
func (h *Heuristic) Summarize(history []Message) string {
	if len(history) <= 2 {
		return summaryJustStarted
	}

	var positive, negative, neutral int
	for _, m := range history {
		if m.IsBot {
			continue
		}
		text := strings.ToLower(m.Text)
		positive += countMatches(text, summaryPositiveWords)
		negative += countMatches(text, summaryNegativeWords)
		neutral += countMatches(text, summaryNeutralWords)
	}

	switch {
	case positive > negative && positive > neutral:
		return summaryPositive
	case negative > positive && negative > neutral:
		return summaryNegative
	case neutral > positive && neutral > negative:
		return summaryNeutral
	default:
		return summaryMixed
	}
}

func countMatches(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

func containsAny(text string, words []string) bool {
	return countMatches(text, words) > 0
}
