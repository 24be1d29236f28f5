package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// HTTP metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodchat_http_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"route", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodchat_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moodchat_http_rate_limited_total",
			Help: "Requests rejected by the per-device rate limiter",
		},
	)

	// Coalescer metrics
	PendingDrafts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodchat_pending_drafts",
			Help: "Number of sessions holding an unflushed draft",
		},
	)

	CoalescedUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moodchat_coalesced_updates_total",
			Help: "Drafts replaced by a newer draft before being written",
		},
	)

	FlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodchat_flushes_total",
			Help: "Session flushes by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	FlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moodchat_flush_duration_seconds",
			Help:    "Time spent writing a draft to the store",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Scorer metrics
	ScorerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodchat_scorer_requests_total",
			Help: "Mood analysis requests by scorer and result",
		},
		[]string{"scorer", "result"},
	)

	ScorerDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moodchat_scorer_degraded_total",
			Help: "Mood analyses that fell back to default values",
		},
	)

	// Session metrics
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moodchat_sessions_started_total",
			Help: "Chat sessions created",
		},
	)

	MessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moodchat_messages_total",
			Help: "User messages handled",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		RateLimited,
		PendingDrafts,
		CoalescedUpdates,
		FlushesTotal,
		FlushDuration,
		ScorerRequests,
		ScorerDegraded,
		SessionsStarted,
		MessagesTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server. ready, when set, backs /health:
// a non-nil error turns the probe into a 503.
func NewServer(addr string, ready func(context.Context) error, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				logger.Warn().Err(err).Msg("Health check failed")
				http.Error(w, "UNAVAILABLE: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the metrics HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
