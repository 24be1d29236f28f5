// Package coalesce batches bursts of per-session updates into a single
// deferred store write once the session has been quiet for a window.
package coalesce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/goodtune/moodchat/internal/metrics"
	"github.com/goodtune/moodchat/internal/storage"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWindow is the inactivity window after which a draft is written
	DefaultWindow = 30 * time.Minute

	// DefaultFlushTimeout bounds a single store write
	DefaultFlushTimeout = 10 * time.Second

	// DefaultStripes is the number of lock stripes guarding the draft map
	DefaultStripes = 64

	// DefaultDrainConcurrency bounds parallel writes during Shutdown
	DefaultDrainConcurrency = 8
)

// flush triggers, used as a metric label
const (
	triggerTimer    = "timer"
	triggerRetry    = "retry"
	triggerManual   = "manual"
	triggerShutdown = "shutdown"
)

// Writer persists the final state of a session.
type Writer interface {
	UpdateFinal(ctx context.Context, sessionID string, update storage.FinalUpdate) (*storage.Session, error)
}

// Config holds coalescer configuration
type Config struct {
	// Window is the quiet period after the latest update before the draft is written.
	Window time.Duration

	FlushTimeout time.Duration

	// RetryInitialInterval enables automatic retry of failed flushes when non-zero.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	Stripes          int
	DrainConcurrency int

	// Clock is the timer source. Defaults to the wall clock.
	Clock clock.Clock
}

// Update is the payload proposed for a session's next write. Summary, score
// and label always travel together.
type Update struct {
	Summary   string
	MoodScore int
	MoodLabel string
}

// Draft is a copy of a pending update.
type Draft struct {
	SessionID   string
	Summary     string
	MoodScore   int
	MoodLabel   string
	RequestedAt time.Time
	Attempts    int
}

type entry struct {
	draft Draft
	gen   uint64
	timer *clock.Timer
	retry *backoff.ExponentialBackOff
}

// writeLock serializes store writes for one session ID. It outlives the
// entry, so a cancelled draft's write and its successor's never overlap.
type writeLock struct {
	mu   sync.Mutex
	refs int
}

type shard struct {
	mu      sync.Mutex
	pending map[string]*entry
	writers map[string]*writeLock
}

// Coalescer holds at most one pending draft per session and writes it once
// no new update has arrived for the configured window.
type Coalescer struct {
	store            Writer
	clock            clock.Clock
	window           time.Duration
	flushTimeout     time.Duration
	retryInitial     time.Duration
	retryMax         time.Duration
	drainConcurrency int
	shards           []*shard
	closed           atomic.Bool
	logger           zerolog.Logger
}

// New creates a new coalescer writing drafts to store
func New(store Writer, config Config, logger zerolog.Logger) *Coalescer {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = DefaultFlushTimeout
	}
	if config.Stripes <= 0 {
		config.Stripes = DefaultStripes
	}
	if config.DrainConcurrency <= 0 {
		config.DrainConcurrency = DefaultDrainConcurrency
	}
	if config.RetryMaxInterval < config.RetryInitialInterval {
		config.RetryMaxInterval = config.RetryInitialInterval
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	c := &Coalescer{
		store:            store,
		clock:            config.Clock,
		window:           config.Window,
		flushTimeout:     config.FlushTimeout,
		retryInitial:     config.RetryInitialInterval,
		retryMax:         config.RetryMaxInterval,
		drainConcurrency: config.DrainConcurrency,
		shards:           make([]*shard, config.Stripes),
		logger:           logger.With().Str("component", "coalescer").Logger(),
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			pending: make(map[string]*entry),
			writers: make(map[string]*writeLock),
		}
	}

	return c
}

// Window returns the configured inactivity window.
func (c *Coalescer) Window() time.Duration {
	return c.window
}

func (c *Coalescer) shardFor(sessionID string) *shard {
	return c.shards[xxhash.Sum64String(sessionID)%uint64(len(c.shards))]
}

// RequestUpdate records u as the latest draft for sessionID and (re)starts the
// session's window. It never touches the store.
func (c *Coalescer) RequestUpdate(sessionID string, u Update) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	if u.MoodScore < storage.MinMoodScore || u.MoodScore > storage.MaxMoodScore {
		return fmt.Errorf("%w: %d", ErrInvalidScore, u.MoodScore)
	}

	sh := c.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	// Checked under the stripe lock so Shutdown's snapshot cannot miss a draft
	if c.closed.Load() {
		return ErrClosed
	}

	e, coalesced := sh.pending[sessionID]
	if coalesced {
		if e.timer != nil {
			e.timer.Stop()
		}
		metrics.CoalescedUpdates.Inc()
	} else {
		e = &entry{}
		sh.pending[sessionID] = e
		metrics.PendingDrafts.Inc()
	}

	e.draft = Draft{
		SessionID:   sessionID,
		Summary:     u.Summary,
		MoodScore:   u.MoodScore,
		MoodLabel:   u.MoodLabel,
		RequestedAt: c.clock.Now(),
	}
	e.gen++
	e.retry = nil

	gen := e.gen
	e.timer = c.clock.AfterFunc(c.window, func() {
		c.fire(sessionID, e, gen, triggerTimer)
	})

	c.logger.Debug().
		Str("session_id", sessionID).
		Int("mood_score", u.MoodScore).
		Bool("coalesced", coalesced).
		Dur("window", c.window).
		Msg("Session update scheduled")

	return nil
}

// Flush writes the pending draft for sessionID now. Flushing a session with
// no draft is a no-op. On failure the draft stays pending.
func (c *Coalescer) Flush(ctx context.Context, sessionID string) error {
	sh := c.shardFor(sessionID)
	sh.mu.Lock()
	e := sh.pending[sessionID]
	sh.mu.Unlock()

	if e == nil {
		metrics.FlushesTotal.WithLabelValues(triggerManual, "skipped").Inc()
		c.logger.Warn().Str("session_id", sessionID).Str("trigger", triggerManual).Msg("Flush requested for session without pending draft")
		return nil
	}

	return c.flushEntry(ctx, sessionID, e, 0, triggerManual)
}

// Cancel discards the pending draft for sessionID without writing it.
// It reports whether a draft was discarded.
func (c *Coalescer) Cancel(sessionID string) bool {
	sh := c.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.pending[sessionID]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(sh.pending, sessionID)
	metrics.PendingDrafts.Dec()

	c.logger.Debug().Str("session_id", sessionID).Msg("Pending draft cancelled")
	return true
}

// Pending returns a copy of the draft held for sessionID.
func (c *Coalescer) Pending(sessionID string) (Draft, bool) {
	sh := c.shardFor(sessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.pending[sessionID]
	if !ok {
		return Draft{}, false
	}
	return e.draft, true
}

// Len returns the number of sessions with a pending draft.
func (c *Coalescer) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		n += len(sh.pending)
		sh.mu.Unlock()
	}
	return n
}

// Shutdown stops accepting updates and writes every pending draft. Drafts
// whose write fails remain pending and their errors are returned together.
func (c *Coalescer) Shutdown(ctx context.Context) error {
	c.closed.Store(true)

	type ref struct {
		id string
		e  *entry
	}

	var refs []ref
	for _, sh := range c.shards {
		sh.mu.Lock()
		for id, e := range sh.pending {
			if e.timer != nil {
				e.timer.Stop()
			}
			refs = append(refs, ref{id: id, e: e})
		}
		sh.mu.Unlock()
	}

	c.logger.Info().Int("pending", len(refs)).Msg("Draining pending drafts")

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	g.SetLimit(c.drainConcurrency)

	for _, r := range refs {
		g.Go(func() error {
			if err := c.flushEntry(ctx, r.id, r.e, 0, triggerShutdown); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if errs != nil {
		c.logger.Error().Err(errs).Int("failed", len(multierr.Errors(errs))).Msg("Some drafts could not be written during shutdown")
	}

	return errs
}

// fire runs when a window or retry timer expires.
func (c *Coalescer) fire(sessionID string, e *entry, gen uint64, trigger string) {
	_ = c.flushEntry(context.Background(), sessionID, e, gen, trigger)
}

// flushEntry writes the draft held in e. A non-zero gen restricts the write to
// that generation of the draft, so timers belonging to a superseded draft
// become no-ops.
func (c *Coalescer) flushEntry(ctx context.Context, sessionID string, e *entry, gen uint64, trigger string) error {
	sh := c.shardFor(sessionID)
	unlock := sh.lockWriter(sessionID)
	defer unlock()

	sh.mu.Lock()
	if sh.pending[sessionID] != e || (gen != 0 && e.gen != gen) {
		sh.mu.Unlock()
		metrics.FlushesTotal.WithLabelValues(trigger, "skipped").Inc()
		c.logger.Warn().
			Str("session_id", sessionID).
			Str("trigger", trigger).
			Msg("Flush skipped, draft already written, cancelled or superseded")
		return nil
	}
	draft := e.draft
	gen = e.gen
	if e.timer != nil {
		e.timer.Stop()
	}
	sh.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, c.flushTimeout)
	start := time.Now()
	_, err := c.store.UpdateFinal(writeCtx, sessionID, storage.FinalUpdate{
		EndTime:   c.clock.Now(),
		Summary:   draft.Summary,
		MoodScore: draft.MoodScore,
		MoodLabel: draft.MoodLabel,
	})
	cancel()
	metrics.FlushDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.FlushesTotal.WithLabelValues(trigger, "error").Inc()

		var retryIn time.Duration
		sh.mu.Lock()
		if sh.pending[sessionID] == e && e.gen == gen {
			e.draft.Attempts++
			retryIn = c.scheduleRetry(sessionID, e, err)
		}
		sh.mu.Unlock()

		c.logger.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("trigger", trigger).
			Int("attempts", draft.Attempts+1).
			Dur("retry_in", retryIn).
			Msg("Failed to write session draft, keeping it pending")

		return fmt.Errorf("flush session %s: %w", sessionID, err)
	}

	metrics.FlushesTotal.WithLabelValues(trigger, "success").Inc()

	sh.mu.Lock()
	if sh.pending[sessionID] == e && e.gen == gen {
		delete(sh.pending, sessionID)
		metrics.PendingDrafts.Dec()
	}
	sh.mu.Unlock()

	c.logger.Info().
		Str("session_id", sessionID).
		Str("trigger", trigger).
		Int("mood_score", draft.MoodScore).
		Msg("Session draft written")

	return nil
}

// lockWriter blocks until no other write for sessionID is in flight and
// returns the release func.
func (sh *shard) lockWriter(sessionID string) func() {
	sh.mu.Lock()
	l, ok := sh.writers[sessionID]
	if !ok {
		l = &writeLock{}
		sh.writers[sessionID] = l
	}
	l.refs++
	sh.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		sh.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(sh.writers, sessionID)
		}
		sh.mu.Unlock()
	}
}

// scheduleRetry arms a backoff timer for a failed draft and returns its delay,
// or zero when no retry is scheduled. Must be called with the stripe lock held
// and only while e still holds the failed generation.
func (c *Coalescer) scheduleRetry(sessionID string, e *entry, cause error) time.Duration {
	if c.retryInitial <= 0 || c.closed.Load() || errors.Is(cause, storage.ErrNotFound) {
		return 0
	}

	if e.retry == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.retryInitial
		b.MaxInterval = c.retryMax
		b.MaxElapsedTime = 0
		b.Clock = c.clock
		b.Reset()
		e.retry = b
	}

	delay := e.retry.NextBackOff()
	gen := e.gen
	e.timer = c.clock.AfterFunc(delay, func() {
		c.fire(sessionID, e, gen, triggerRetry)
	})
	return delay
}
