package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/larkela/chunkline/internal/tracker"
)

type snapshotResponse struct {
	tracker.Snapshot
	Estimate tracker.Estimate `json:"estimate"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.handleOptions(w, r, "POST, OPTIONS") {
		return
	}
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	if !s.authorized(w, r) {
		return
	}

	var payload struct {
		ItemID string `json:"itemId"`
		Title  string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.ItemID) == "" {
		s.writeError(w, "itemId is required", http.StatusBadRequest)
		return
	}

	sessionID := ulid.Make().String()
	surface := sessionSurface{hub: s.hub, sessionID: sessionID}

	session, err := tracker.NewSession(tracker.Deps{
		Store:       s.store,
		Surface:     surface,
		Refresher:   surface,
		Broadcaster: surface,
	}, s.trackerCfg, payload.ItemID, payload.Title)
	if err != nil {
		s.writeError(w, errInternal, http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.sessions[sessionID] = session
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"item_id":    payload.ItemID,
	}).Info("Session created")

	snap, err := session.Snapshot()
	if err != nil {
		s.writeError(w, errInternal, http.StatusInternalServerError)
		return
	}

	writeJSON(w, struct {
		SessionID string           `json:"sessionId"`
		Snapshot  tracker.Snapshot `json:"snapshot"`
	}{SessionID: sessionID, Snapshot: snap})
}

// Routes under /api/sessions/{id}[/{action}]
func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if s.handleOptions(w, r, "GET, POST, DELETE, OPTIONS") {
		return
	}
	if !s.authorized(w, r) {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, errNotFound, http.StatusNotFound)
		return
	}

	sessionID := parts[0]
	action := ""
	if len(parts) >= 2 {
		action = parts[1]
	}

	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		s.writeError(w, errNotFound, http.StatusNotFound)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.writeSnapshot(w, session)
		case http.MethodDelete:
			s.mu.Lock()
			delete(s.sessions, sessionID)
			s.mu.Unlock()
			session.Close()
			s.log.WithFields(logrus.Fields{"session_id": sessionID}).Info("Session closed")
			writeJSON(w, map[string]string{"status": "ok"})
		default:
			s.methodNotAllowed(w)
		}

	case "events":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		s.handleSessionEvent(w, r, session)

	case "chunk-size":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		s.handleChunkSize(w, r, session)

	case "tasklist":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		visible, err := session.ToggleTaskList()
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"visible": visible})

	case "confirmation":
		if r.Method != http.MethodPost {
			s.methodNotAllowed(w)
			return
		}
		s.handleConfirmation(w, r, session)

	default:
		s.writeError(w, errNotFound, http.StatusNotFound)
	}
}

func (s *Server) handleSessionEvent(w http.ResponseWriter, r *http.Request, session *tracker.Session) {
	var payload struct {
		Type     string  `json:"type"`
		Position float64 `json:"position"`
		Duration float64 `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, "bad request", http.StatusBadRequest)
		return
	}

	var err error
	switch payload.Type {
	case "metadata":
		err = session.HandleMetadata(payload.Duration)
	case "timeupdate":
		err = session.HandleTimeUpdate(payload.Position)
	case "seek":
		err = session.HandleSeek(payload.Position)
	default:
		s.writeError(w, "unknown event type", http.StatusBadRequest)
		return
	}

	if err != nil {
		if errors.Is(err, tracker.ErrInvalidDuration) {
			s.writeError(w, "invalid duration", http.StatusBadRequest)
			return
		}
		s.writeSessionError(w, err)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleChunkSize(w http.ResponseWriter, r *http.Request, session *tracker.Session) {
	var payload struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := session.SetChunkSize(payload.Minutes); err != nil {
		if errors.Is(err, tracker.ErrInvalidChunkSize) {
			s.writeError(w, "chunk size must be between 1 and 120 minutes", http.StatusBadRequest)
			return
		}
		s.writeSessionError(w, err)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleConfirmation(w http.ResponseWriter, r *http.Request, session *tracker.Session) {
	var payload struct {
		Kind       tracker.ConfirmationKind `json:"kind"`
		Resolution tracker.Resolution       `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, "bad request", http.StatusBadRequest)
		return
	}

	switch payload.Resolution {
	case tracker.ResolutionConfirm, tracker.ResolutionDecline, tracker.ResolutionDismiss:
	default:
		s.writeError(w, "unknown resolution", http.StatusBadRequest)
		return
	}

	if err := session.Resolve(payload.Kind, payload.Resolution); err != nil {
		if errors.Is(err, tracker.ErrNoConfirmation) {
			s.writeError(w, "no matching confirmation pending", http.StatusConflict)
			return
		}
		s.writeSessionError(w, err)
		return
	}

	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) writeSnapshot(w http.ResponseWriter, session *tracker.Session) {
	snap, err := session.Snapshot()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	goal := tracker.DefaultSettings().DailyGoalMinutes
	if settings, err := s.store.ReadSettings(); err == nil {
		goal = settings.DailyGoalMinutes
	}

	item := tracker.Item{
		ChunkSizeMinutes: snap.ChunkSizeMinutes,
		TotalChunks:      snap.TotalChunks,
		CompletedChunks:  snap.CompletedChunks,
	}

	writeJSON(w, snapshotResponse{
		Snapshot: snap,
		Estimate: tracker.CompletionEstimate(item, goal),
	})
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, tracker.ErrSessionClosed) {
		s.writeError(w, "session closed", http.StatusGone)
		return
	}
	s.writeError(w, errInternal, http.StatusInternalServerError)
}
