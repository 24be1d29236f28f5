package api

import (
	"net/http"

	"github.com/goodtune/moodchat/internal/calendar"
	"github.com/goodtune/moodchat/internal/chat"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// CalendarHandler handles mood calendar API requests.
type CalendarHandler struct {
	chat   *chat.Service
	logger zerolog.Logger
}

// NewCalendarHandler creates a new calendar handler.
func NewCalendarHandler(service *chat.Service, logger zerolog.Logger) *CalendarHandler {
	return &CalendarHandler{
		chat:   service,
		logger: logger.With().Str("handler", "calendar").Logger(),
	}
}

// Month returns the grid for ?month=YYYY-MM, defaulting to the current month.
func (h *CalendarHandler) Month(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := GetDeviceIDFromContext(r.Context())

	month := h.chat.Now()
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := calendar.ParseMonth(raw, h.chat.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month format. Use YYYY-MM")
			return
		}
		month = parsed
	}

	view, err := h.chat.Month(r.Context(), deviceID, month)
	if err != nil {
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to build month grid")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve calendar")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Day returns the summary of one YYYY-MM-DD day.
func (h *CalendarHandler) Day(w http.ResponseWriter, r *http.Request) {
	deviceID, _ := GetDeviceIDFromContext(r.Context())
	raw := mux.Vars(r)["date"]

	date, err := calendar.ParseDay(raw, h.chat.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return
	}

	day, err := h.chat.Day(r.Context(), deviceID, date)
	if err != nil {
		h.logger.Error().Err(err).Str("date", raw).Msg("Failed to summarize day")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve day")
		return
	}

	writeJSON(w, http.StatusOK, day)
}
