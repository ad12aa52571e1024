package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larkela/chunkline/internal/auth"
	"github.com/larkela/chunkline/internal/reminder"
	"github.com/larkela/chunkline/internal/tracker"
)

const (
	errInternal = "internal error"
	errNotFound = "not found"

	pairMinInterval = 2 * time.Second
)

// Options configures a Server.
type Options struct {
	Addr          string
	Store         Store
	AuthManager   *auth.Manager // nil disables auth
	Reminder      *reminder.Scheduler
	TrackerConfig tracker.Config
	AllowedOrigin string
	Log           *logrus.Logger
}

type Server struct {
	addr          string
	store         Store
	authManager   *auth.Manager
	reminder      *reminder.Scheduler
	trackerCfg    tracker.Config
	hub           *Hub
	log           *logrus.Logger
	http          *http.Server
	pairLimiter   *RateLimiter
	allowedOrigin string

	mu       sync.Mutex
	sessions map[string]*tracker.Session
}

func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		addr:          opts.Addr,
		store:         opts.Store,
		authManager:   opts.AuthManager,
		reminder:      opts.Reminder,
		trackerCfg:    opts.TrackerConfig,
		hub:           NewHub(log),
		log:           log,
		pairLimiter:   NewRateLimiter(pairMinInterval),
		allowedOrigin: opts.AllowedOrigin,
		sessions:      make(map[string]*tracker.Session),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/pair", s.handlePair)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionDetail)
	mux.HandleFunc("/api/items", s.handleItems)
	mux.HandleFunc("/api/items/", s.handleItemDetail)
	mux.HandleFunc("/api/settings", s.handleSettings)

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.logMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub exposes the event hub so the reminder scheduler can publish through it.
func (s *Server) Hub() *Hub { return s.hub }

// SetReminder wires the scheduler that gets rescheduled on settings changes.
// Call before Start; the scheduler needs the hub, so it is built second.
func (s *Server) SetReminder(r *reminder.Scheduler) { s.reminder = r }

func (s *Server) Start() error { return s.http.ListenAndServe() }

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Close() error {
	s.mu.Lock()
	for id, session := range s.sessions {
		session.Close()
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleOptions answers CORS preflight. Returns true when the request was
// an OPTIONS request and has been handled.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request, allow string) bool {
	s.setCORSHeaders(w)
	if r.Method != http.MethodOptions {
		return false
	}
	w.Header().Set("Access-Control-Allow-Methods", allow)
	w.WriteHeader(http.StatusNoContent)
	return true
}

func (s *Server) methodNotAllowed(w http.ResponseWriter) {
	s.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
}

func (s *Server) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

// authorized enforces bearer-token auth on API handlers. Pair and health
// stay open so a client can bootstrap.
func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if s.authManager == nil {
		return true
	}

	token := extractToken(r)
	if token == "" {
		s.writeError(w, "missing authorization token", http.StatusUnauthorized)
		return false
	}

	if err := s.authManager.Validate(token); err != nil {
		switch err {
		case auth.ErrInvalidToken, auth.ErrTokenExpired:
			s.writeError(w, "invalid or expired token", http.StatusUnauthorized)
		default:
			s.writeError(w, errInternal, http.StatusInternalServerError)
		}
		return false
	}

	return true
}
