package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/larkela/chunkline/internal/auth"
)

// handlePair exchanges the pairing password for a bearer token
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if s.handleOptions(w, r, "POST, OPTIONS") {
		return
	}
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	if s.authManager == nil {
		s.writeError(w, "pairing not enabled", http.StatusNotImplemented)
		return
	}

	if ok, wait := s.pairLimiter.Allow(clientKey(r)); !ok {
		w.Header().Set("Retry-After", wait.Round(time.Second).String())
		s.writeError(w, "too many pairing attempts", http.StatusTooManyRequests)
		return
	}

	var payload struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Password) == "" {
		s.writeError(w, "password is required", http.StatusBadRequest)
		return
	}

	token, expiresAt, err := s.authManager.Pair(payload.Password)
	if err != nil {
		switch err {
		case auth.ErrInvalidCredentials, auth.ErrNotPaired:
			s.writeError(w, "invalid pairing password", http.StatusUnauthorized)
		default:
			s.writeError(w, errInternal, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}{Token: token, ExpiresAt: expiresAt})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return parts[1]
}
