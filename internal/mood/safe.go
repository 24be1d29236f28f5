package mood

import (
	"context"
	"fmt"

	"github.com/goodtune/moodchat/internal/metrics"
	"github.com/rs/zerolog"
)

// Safe wraps an Analyzer so that analysis never fails. Errors, panics and
// out-of-range results are replaced by the neutral result and logged as a
// degraded event.
type Safe struct {
	name     string
	inner    Analyzer
	fallback Result
	logger   zerolog.Logger
}

// NewSafe wraps inner. name labels metrics and log events.
func NewSafe(name string, inner Analyzer, logger zerolog.Logger) *Safe {
	return &Safe{
		name:     name,
		inner:    inner,
		fallback: Neutral(),
		logger:   logger.With().Str("component", "scorer").Str("scorer", name).Logger(),
	}
}

// Name returns the wrapped analyzer's name.
func (s *Safe) Name() string {
	return s.name
}

// Analyze returns the inner analyzer's result, or the neutral result when it
// cannot be used. The second return value reports degradation.
func (s *Safe) Analyze(ctx context.Context, history []Message, latest string) (result Result, degraded bool) {
	defer func() {
		if r := recover(); r != nil {
			result, degraded = s.degrade(fmt.Errorf("analyzer panic: %v", r)), true
		}
	}()

	res, err := s.inner.Analyze(ctx, history, latest)
	if err != nil {
		return s.degrade(err), true
	}
	if !res.Valid() {
		return s.degrade(fmt.Errorf("invalid analysis: score %d, empty response %v", res.MoodScore, res.Response == "")), true
	}
	if res.MoodLabel == "" {
		res.MoodLabel = LabelFor(res.MoodScore)
	}

	metrics.ScorerRequests.WithLabelValues(s.name, "success").Inc()
	return res, false
}

func (s *Safe) degrade(err error) Result {
	metrics.ScorerRequests.WithLabelValues(s.name, "error").Inc()
	metrics.ScorerDegraded.Inc()

	s.logger.Warn().Err(err).Msg("Mood analysis degraded, using neutral default")
	return s.fallback
}
