package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/larkela/chunkline/internal/tracker"
)

type itemResponse struct {
	tracker.Item
	Percentage int              `json:"percentage"`
	Estimate   tracker.Estimate `json:"estimate"`
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if s.handleOptions(w, r, "GET, POST, OPTIONS") {
		return
	}
	if !s.authorized(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		items, err := s.store.ReadTrackedItems()
		if err != nil {
			s.writeError(w, errInternal, http.StatusInternalServerError)
			return
		}

		goal := tracker.DefaultSettings().DailyGoalMinutes
		if settings, err := s.store.ReadSettings(); err == nil {
			goal = settings.DailyGoalMinutes
		}

		response := make([]itemResponse, len(items))
		for i, item := range items {
			response[i] = itemResponse{
				Item:       item,
				Percentage: item.Percentage(),
				Estimate:   tracker.CompletionEstimate(item, goal),
			}
		}
		writeJSON(w, response)

	case http.MethodPost:
		// Adding to the list happens through an active session so the
		// item carries the session's live progress.
		var payload struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, "bad request", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		session, ok := s.sessions[payload.SessionID]
		s.mu.Unlock()
		if !ok {
			s.writeError(w, "unknown session", http.StatusNotFound)
			return
		}

		item, err := session.Track()
		if err != nil {
			s.writeSessionError(w, err)
			return
		}

		s.log.WithFields(logrus.Fields{"item_id": item.ItemID}).Info("Item tracked")
		writeJSON(w, itemResponse{Item: item, Percentage: item.Percentage()})

	default:
		s.methodNotAllowed(w)
	}
}

// Routes under /api/items/{id}
func (s *Server) handleItemDetail(w http.ResponseWriter, r *http.Request) {
	if s.handleOptions(w, r, "GET, DELETE, OPTIONS") {
		return
	}
	if !s.authorized(w, r) {
		return
	}

	itemID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/items/"), "/")
	if itemID == "" {
		s.writeError(w, errNotFound, http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		item, ok, err := s.store.GetTrackedItem(itemID)
		if err != nil {
			s.writeError(w, errInternal, http.StatusInternalServerError)
			return
		}
		if !ok {
			s.writeError(w, errNotFound, http.StatusNotFound)
			return
		}
		writeJSON(w, itemResponse{Item: item, Percentage: item.Percentage()})

	case http.MethodDelete:
		if err := s.store.RemoveTrackedItem(itemID); err != nil {
			s.writeError(w, errInternal, http.StatusInternalServerError)
			return
		}

		// Active sessions for this item fall back to session-only state.
		s.mu.Lock()
		for _, session := range s.sessions {
			if session.ItemID() == itemID {
				session.Untrack()
			}
		}
		s.mu.Unlock()

		s.log.WithFields(logrus.Fields{"item_id": itemID}).Info("Item removed")
		writeJSON(w, map[string]string{"status": "ok"})

	default:
		s.methodNotAllowed(w)
	}
}
