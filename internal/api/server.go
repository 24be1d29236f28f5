// Package api serves the chat and calendar JSON API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/moodchat/internal/chat"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr       string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	RateLimit        int
	RateLimitWindow  time.Duration
	RateLimitDevices int
	AllowedOrigins   []string
}

// Server represents the API HTTP server.
type Server struct {
	config   Config
	chat     *chat.Service
	server   *http.Server
	router   *mux.Router
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, service *chat.Service, logger zerolog.Logger) (*Server, error) {
	rateLimiter, err := NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow, cfg.RateLimitDevices)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}

	s := &Server{
		config: cfg,
		chat:   service,
		router: mux.NewRouter(),
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes(rateLimiter)

	var handler http.Handler = s.router
	if len(cfg.AllowedOrigins) > 0 {
		// Outside the router so preflight requests reach it
		handler = CORSMiddleware(cfg.AllowedOrigins)(handler)
	}

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(rateLimiter *RateLimiter) {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(MetricsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiRouter.Use(DeviceMiddleware)
	apiRouter.Use(RateLimitMiddleware(rateLimiter))

	sessions := NewSessionsHandler(s.chat, s.logger)
	apiRouter.HandleFunc("/sessions", sessions.Create).Methods("POST")
	apiRouter.HandleFunc("/sessions/{id}", sessions.Get).Methods("GET")
	apiRouter.HandleFunc("/sessions/{id}", sessions.Delete).Methods("DELETE")
	apiRouter.HandleFunc("/sessions/{id}/messages", sessions.PostMessage).Methods("POST")
	apiRouter.HandleFunc("/sessions/{id}/flush", sessions.Flush).Methods("POST")
	apiRouter.HandleFunc("/sessions/{id}/draft", sessions.DiscardDraft).Methods("DELETE")

	calendarHandler := NewCalendarHandler(s.chat, s.logger)
	apiRouter.HandleFunc("/calendar", calendarHandler.Month).Methods("GET")
	apiRouter.HandleFunc("/calendar/days/{date}", calendarHandler.Day).Methods("GET")
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener (for systemd socket activation).
func (s *Server) SetListener(listener net.Listener) {
	s.listener = listener
}

// Start starts the API server.
func (s *Server) Start() error {
	if s.listener != nil {
		s.logger.Info().
			Str("addr", s.listener.Addr().String()).
			Msg("Starting API server (systemd socket)")

		go func() {
			if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
				s.logger.Error().Err(err).Msg("API server error")
			}
		}()
		return nil
	}

	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"pending_drafts": s.chat.PendingDrafts(),
	})
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
