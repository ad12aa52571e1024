package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/larkela/chunkline/internal/tracker"
)

// Store is the persistence surface the server needs: the tracker's view
// plus settings writes.
type Store interface {
	tracker.Store
	WriteSettings(settings tracker.Settings) error
}

var reminderTimePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.handleOptions(w, r, "GET, PUT, OPTIONS") {
		return
	}
	if !s.authorized(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.store.ReadSettings()
		if err != nil {
			s.writeError(w, errInternal, http.StatusInternalServerError)
			return
		}
		writeJSON(w, settings)

	case http.MethodPut:
		var settings tracker.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			s.writeError(w, "bad request", http.StatusBadRequest)
			return
		}

		if msg, ok := validateSettings(settings); !ok {
			s.writeError(w, msg, http.StatusBadRequest)
			return
		}

		if err := s.store.WriteSettings(settings); err != nil {
			s.writeError(w, errInternal, http.StatusInternalServerError)
			return
		}

		if s.reminder != nil {
			s.reminder.Reschedule()
		}

		writeJSON(w, settings)

	default:
		s.methodNotAllowed(w)
	}
}

func validateSettings(settings tracker.Settings) (string, bool) {
	if settings.DefaultChunkSizeMinutes < 1 || settings.DefaultChunkSizeMinutes > 120 {
		return "chunk size must be between 1 and 120 minutes", false
	}
	if settings.DailyGoalMinutes < 5 || settings.DailyGoalMinutes > 300 {
		return "daily goal must be between 5 and 300 minutes", false
	}
	if !reminderTimePattern.MatchString(settings.ReminderTime) {
		return "reminder time must be HH:MM", false
	}
	if _, err := time.Parse("15:04", settings.ReminderTime); err != nil {
		return "reminder time must be a valid HH:MM time", false
	}
	return "", true
}
