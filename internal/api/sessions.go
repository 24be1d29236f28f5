package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/goodtune/moodchat/internal/chat"
	"github.com/goodtune/moodchat/internal/mood"
	"github.com/goodtune/moodchat/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const maxMessageBody = 1 << 20

// SessionsHandler handles chat session API requests.
type SessionsHandler struct {
	chat   *chat.Service
	logger zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(service *chat.Service, logger zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		chat:   service,
		logger: logger.With().Str("handler", "sessions").Logger(),
	}
}

// DraftResponse describes a pending, unwritten session update.
type DraftResponse struct {
	Summary     string    `json:"summary"`
	MoodScore   int       `json:"mood_score"`
	MoodLabel   string    `json:"mood_label,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	Attempts    int       `json:"attempts"`
}

// SessionResponse is a stored session with its pending draft, if any.
type SessionResponse struct {
	Session    *storage.Session `json:"session"`
	InProgress bool             `json:"in_progress"`
	Draft      *DraftResponse   `json:"draft,omitempty"`
}

// MessageRequest is the body of a chat turn.
type MessageRequest struct {
	Message string         `json:"message"`
	History []mood.Message `json:"history"`
}

// Create starts a new chat session for the requesting device.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := GetDeviceIDFromContext(r.Context())

	started, err := h.chat.StartSession(r.Context(), deviceID)
	if err != nil {
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to start session")
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	writeJSON(w, http.StatusCreated, started)
}

// Get returns a session by ID.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := GetDeviceIDFromContext(r.Context())
	id := mux.Vars(r)["id"]

	session, err := h.chat.Session(r.Context(), deviceID, id)
	if err != nil {
		h.writeSessionError(w, err, id, "Failed to retrieve session")
		return
	}

	resp := SessionResponse{Session: session, InProgress: session.InProgress()}
	if draft, ok := h.chat.Draft(id); ok {
		resp.Draft = &DraftResponse{
			Summary:     draft.Summary,
			MoodScore:   draft.MoodScore,
			MoodLabel:   draft.MoodLabel,
			RequestedAt: draft.RequestedAt,
			Attempts:    draft.Attempts,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Delete removes a session and abandons its pending draft.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := GetDeviceIDFromContext(r.Context())
	id := mux.Vars(r)["id"]

	if err := h.chat.DeleteSession(r.Context(), deviceID, id); err != nil {
		h.writeSessionError(w, err, id, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PostMessage handles one chat turn.
func (h *SessionsHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := GetDeviceIDFromContext(r.Context())
	id := mux.Vars(r)["id"]

	var req MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reply, err := h.chat.HandleMessage(r.Context(), deviceID, id, req.History, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "Message is required")
			return
		}
		h.writeSessionError(w, err, id, "Failed to process message")
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// Flush writes the session's pending draft immediately.
func (h *SessionsHandler) Flush(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := GetDeviceIDFromContext(r.Context())
	id := mux.Vars(r)["id"]

	flushed, err := h.chat.FlushSession(r.Context(), deviceID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to flush session")
		writeError(w, http.StatusBadGateway, "Failed to write session, the draft is kept for retry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"flushed":    flushed,
	})
}

// DiscardDraft drops the session's pending draft.
func (h *SessionsHandler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := GetDeviceIDFromContext(r.Context())
	id := mux.Vars(r)["id"]

	discarded, err := h.chat.DiscardDraft(r.Context(), deviceID, id)
	if err != nil {
		h.writeSessionError(w, err, id, "Failed to discard draft")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"discarded":  discarded,
	})
}

func (h *SessionsHandler) writeSessionError(w http.ResponseWriter, err error, id, message string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	h.logger.Error().Err(err).Str("id", id).Msg(message)
	writeError(w, http.StatusInternalServerError, message)
}
