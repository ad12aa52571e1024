package tracker

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrSessionClosed    = errors.New("tracker: session closed")
	ErrInvalidDuration  = errors.New("tracker: invalid duration")
	ErrInvalidChunkSize = errors.New("tracker: invalid chunk size")
	ErrNoConfirmation   = errors.New("tracker: no matching confirmation pending")
)

const (
	minChunkSizeMinutes      = 1
	maxChunkSizeMinutes      = 120
	fallbackChunkSizeMinutes = 5

	defaultCompletionThreshold = 0.98
	defaultDebounceWindow      = 500 * time.Millisecond
	defaultConfirmationWait    = 30 * time.Second

	congratsMessage = "Awesome work! You've completed every task for this video."
)

// Config tunes session timing. The zero value picks the defaults.
type Config struct {
	// CompletionThreshold is the share of the duration past which the
	// end-of-content check arms. Defaults to 0.98.
	CompletionThreshold float64
	// DebounceWindow is the quiet period required after the last qualifying
	// position event before the completion check evaluates. Defaults to 500ms.
	DebounceWindow time.Duration
	// ConfirmationWait bounds how long a raised confirmation may stay
	// unanswered before it auto-dismisses. Defaults to 30s.
	ConfirmationWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.CompletionThreshold <= 0 || c.CompletionThreshold >= 1 {
		c.CompletionThreshold = defaultCompletionThreshold
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = defaultDebounceWindow
	}
	if c.ConfirmationWait <= 0 {
		c.ConfirmationWait = defaultConfirmationWait
	}
	return c
}

// Deps are the session's collaborators. Store is required; the rest may be
// nil, in which case the corresponding side effects are skipped.
type Deps struct {
	Store       Store
	Surface     Surface
	Refresher   Refresher
	Broadcaster Broadcaster
}

// Session tracks one content item's chunk progress for one open view. Events
// are processed to completion under the session lock; no two transitions
// interleave. Collaborator callbacks run under that lock and must not call
// back into the session.
type Session struct {
	mu sync.Mutex

	itemID  string
	title   string
	tracked bool
	addedAt time.Time

	cfg         Config
	store       Store
	surface     Surface
	refresher   Refresher
	broadcaster Broadcaster
	settings    Settings
	now         func() time.Time

	duration         float64
	chunkSizeMinutes int
	chunkSizeSeconds float64
	totalChunks      int
	completedChunks  int
	lastConfirmed    int
	lastPosition     float64
	listVisible      bool

	pending      *ConfirmationRequest
	confirmGen   uint64
	confirmTimer *time.Timer

	debounceGen   uint64
	debounceTimer *time.Timer

	closed bool
}

// NewSession reconstructs session state for itemID from the store. A missing
// tracked item starts fresh and is not persisted until Track is called; store
// read failures degrade to the same fresh state.
func NewSession(deps Deps, cfg Config, itemID, title string) (*Session, error) {
	if deps.Store == nil {
		return nil, errors.New("tracker: store is required")
	}
	if itemID == "" {
		return nil, errors.New("tracker: item id is required")
	}

	settings, err := deps.Store.ReadSettings()
	if err != nil {
		log.WithFields(log.Fields{"itemId": itemID, "error": err}).Warn("settings read failed, using defaults")
		settings = DefaultSettings()
	}

	s := &Session{
		itemID:      itemID,
		title:       title,
		cfg:         cfg.withDefaults(),
		store:       deps.Store,
		surface:     deps.Surface,
		refresher:   deps.Refresher,
		broadcaster: deps.Broadcaster,
		settings:    settings,
		now:         time.Now,
		listVisible: true,
	}

	item, ok, err := deps.Store.GetTrackedItem(itemID)
	if err != nil {
		log.WithFields(log.Fields{"itemId": itemID, "error": err}).Warn("tracked item read failed, starting fresh")
	} else if ok {
		s.tracked = true
		s.addedAt = item.AddedAt
		s.completedChunks = item.CompletedChunks
		if s.title == "" {
			s.title = item.Title
		}
	}

	s.chunkSizeMinutes = effectiveChunkSize(item, settings)
	s.chunkSizeSeconds = float64(s.chunkSizeMinutes) * 60
	s.lastConfirmed = s.completedChunks - 1

	return s, nil
}

// effective chunk size: item override > settings default > fallback.
func effectiveChunkSize(item Item, settings Settings) int {
	if item.ChunkSizeMinutes > 0 {
		return item.ChunkSizeMinutes
	}
	if settings.DefaultChunkSizeMinutes > 0 {
		return settings.DefaultChunkSizeMinutes
	}
	return fallbackChunkSizeMinutes
}

// HandleMetadata processes a metadata-loaded event. An invalid duration
// aborts the transition and leaves totalChunks at zero; the next metadata
// event retries implicitly.
func (s *Session) HandleMetadata(duration float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if math.IsNaN(duration) || duration <= 0 {
		return ErrInvalidDuration
	}

	s.duration = duration
	s.recalcLocked()
	s.refreshLocked()
	s.persistLocked()
	return nil
}

// HandleTimeUpdate processes a periodic position update. Re-delivering a
// position with an unchanged chunk index is a no-op for progress; the
// completion-check debounce is re-armed on every qualifying update so only
// the last event of a burst is evaluated.
func (s *Session) HandleTimeUpdate(position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.duration <= 0 || s.chunkSizeSeconds <= 0 || math.IsNaN(position) || position < 0 {
		return nil
	}

	s.lastPosition = position
	s.armCompletionCheckLocked(position)

	if idx := s.chunkIndex(position); idx > s.lastConfirmed {
		s.advanceLocked(idx)
	}
	return nil
}

// HandleSeek processes a discontinuous jump. Forward jumps grant progress up
// to the landing chunk; backward jumps into confirmed territory raise a
// rewatch confirmation unless one is already pending, in which case the event
// is dropped.
func (s *Session) HandleSeek(position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.duration <= 0 || s.chunkSizeSeconds <= 0 || math.IsNaN(position) || position < 0 {
		return nil
	}

	s.lastPosition = position
	idx := s.chunkIndex(position)

	switch {
	case idx < s.lastConfirmed:
		if s.pending != nil {
			return nil
		}
		s.raiseLocked(ConfirmationRequest{
			Kind:            KindRewatch,
			ItemID:          s.itemID,
			LandingIndex:    idx,
			CompletedChunks: s.completedChunks,
			TotalChunks:     s.totalChunks,
		})

	case idx > s.lastConfirmed:
		s.advanceLocked(idx)

	default:
		// Landing at the confirmed boundary: highlight only.
		s.lastConfirmed = idx
		s.refreshLocked()
	}
	return nil
}

// Resolve delivers the outcome of the pending confirmation of the given kind.
func (s *Session) Resolve(kind ConfirmationKind, res Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.pending == nil || s.pending.Kind != kind {
		return ErrNoConfirmation
	}
	s.resolveLocked(res)
	return nil
}

// SetChunkSize changes the effective chunk size and recomputes every chunk
// boundary, clamping completed progress to the new total.
func (s *Session) SetChunkSize(minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if minutes < minChunkSizeMinutes || minutes > maxChunkSizeMinutes {
		return ErrInvalidChunkSize
	}

	s.chunkSizeMinutes = minutes
	s.chunkSizeSeconds = float64(minutes) * 60
	s.recalcLocked()
	s.refreshLocked()
	s.persistLocked()
	return nil
}

// Track adds the session's item to the tracked list, adopting the session's
// live progress. On a write failure the session still considers the item
// tracked; the write is retried on the next mutating transition.
func (s *Session) Track() (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Item{}, ErrSessionClosed
	}

	now := s.now()
	if s.addedAt.IsZero() {
		s.addedAt = now
	}
	s.tracked = true

	item := s.itemLocked(now)
	if err := s.store.WriteTrackedItem(item); err != nil {
		return Item{}, fmt.Errorf("tracking item: %w", err)
	}
	s.broadcastLocked()
	return item, nil
}

// Untrack stops write-through for the session's item. It does not remove the
// stored record; that is the store owner's call.
func (s *Session) Untrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = false
}

// ToggleTaskList flips the task-list visibility bit and returns the new state.
func (s *Session) ToggleTaskList() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	s.listVisible = !s.listVisible
	return s.listVisible, nil
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	return s.snapshotLocked(), nil
}

// Pending returns the outstanding confirmation request, if any.
func (s *Session) Pending() (ConfirmationRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return ConfirmationRequest{}, false
	}
	return *s.pending, true
}

// ItemID returns the content item the session tracks.
func (s *Session) ItemID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemID
}

// Close cancels the pending debounce check and clears the confirmation guard.
// The session is unusable afterwards; a new view gets a new session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancelCompletionCheckLocked()
	s.clearConfirmationLocked()
}

// --- transitions ---

func (s *Session) advanceLocked(idx int) {
	s.completedChunks = idx + 1
	if s.completedChunks > s.totalChunks {
		s.completedChunks = s.totalChunks
	}
	s.lastConfirmed = idx
	s.refreshLocked()
	s.persistLocked()
}

// recalcLocked re-derives totalChunks from (duration, chunk size), clamps
// completed progress, resets the confirmed index, and cancels any pending
// confirmation or completion check. Shared by the metadata-loaded and
// size-change transitions.
func (s *Session) recalcLocked() {
	if s.duration > 0 && s.chunkSizeSeconds > 0 {
		s.totalChunks = int(math.Ceil(s.duration / s.chunkSizeSeconds))
		if s.completedChunks > s.totalChunks {
			s.completedChunks = s.totalChunks
		}
	} else {
		s.totalChunks = 0
	}
	s.lastConfirmed = s.completedChunks - 1
	s.clearConfirmationLocked()
	s.cancelCompletionCheckLocked()
}

func (s *Session) raiseLocked(req ConfirmationRequest) {
	s.pending = &req
	s.confirmGen++
	gen := s.confirmGen
	if s.surface != nil {
		s.surface.PausePlayback()
		s.surface.RequestConfirmation(req)
	}
	s.confirmTimer = time.AfterFunc(s.cfg.ConfirmationWait, func() {
		s.expireConfirmation(gen)
	})
}

// expireConfirmation resolves an unanswered confirmation as a dismissal so an
// unreachable surface can never wedge the session.
func (s *Session) expireConfirmation(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending == nil || gen != s.confirmGen {
		return
	}
	log.WithFields(log.Fields{"itemId": s.itemID, "kind": s.pending.Kind}).Info("confirmation timed out, dismissing")
	s.resolveLocked(ResolutionDismiss)
}

func (s *Session) resolveLocked(res Resolution) {
	req := *s.pending
	s.clearConfirmationLocked()

	switch req.Kind {
	case KindRewatch:
		if res == ResolutionConfirm {
			s.completedChunks = req.LandingIndex + 1
			s.lastConfirmed = req.LandingIndex
			s.refreshLocked()
			s.persistLocked()
			return
		}
		// Keep progress, but move the confirmed index so the user is not
		// re-prompted for the same region.
		s.lastConfirmed = req.LandingIndex
		s.refreshLocked()

	case KindCompletion:
		if res == ResolutionConfirm {
			s.completedChunks = s.totalChunks
			s.lastConfirmed = s.totalChunks - 1
			s.refreshLocked()
			s.persistLocked()
			if s.surface != nil {
				s.surface.ShowAcknowledgment(congratsMessage)
			}
		}
	}
}

func (s *Session) clearConfirmationLocked() {
	s.pending = nil
	s.confirmGen++
	if s.confirmTimer != nil {
		s.confirmTimer.Stop()
		s.confirmTimer = nil
	}
}

// --- completion check debounce ---

func (s *Session) armCompletionCheckLocked(position float64) {
	s.cancelCompletionCheckLocked()
	if position < s.completionThresholdSeconds() {
		return
	}
	gen := s.debounceGen
	s.debounceTimer = time.AfterFunc(s.cfg.DebounceWindow, func() {
		s.completionCheck(gen)
	})
}

func (s *Session) cancelCompletionCheckLocked() {
	s.debounceGen++
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
}

// completionCheck fires after the debounce window. Position-update bursts
// near the end of content re-enter the threshold repeatedly; the generation
// counter makes only the most recent arming count.
func (s *Session) completionCheck(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.debounceGen {
		return
	}
	if s.lastPosition < s.completionThresholdSeconds() {
		return
	}
	// Only prompt once the user is already on the final chunk.
	if s.totalChunks <= 0 || s.completedChunks < s.totalChunks-1 {
		return
	}
	if s.pending != nil {
		return
	}
	s.raiseLocked(ConfirmationRequest{
		Kind:            KindCompletion,
		ItemID:          s.itemID,
		LandingIndex:    s.totalChunks - 1,
		CompletedChunks: s.completedChunks,
		TotalChunks:     s.totalChunks,
	})
}

func (s *Session) completionThresholdSeconds() float64 {
	return s.duration * s.cfg.CompletionThreshold
}

// --- derived state and side effects ---

func (s *Session) chunkIndex(position float64) int {
	return int(position / s.chunkSizeSeconds)
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ItemID:               s.itemID,
		Title:                s.title,
		Duration:             s.duration,
		ChunkSizeMinutes:     s.chunkSizeMinutes,
		TotalChunks:          s.totalChunks,
		CompletedChunks:      s.completedChunks,
		LastConfirmedChunk:   s.lastConfirmed,
		Percentage:           percentage(s.completedChunks, s.totalChunks),
		ListVisible:          s.listVisible,
		Tracked:              s.tracked,
		AwaitingConfirmation: s.pending != nil,
	}
}

func (s *Session) itemLocked(now time.Time) Item {
	return Item{
		ItemID:           s.itemID,
		Title:            s.title,
		ChunkSizeMinutes: s.chunkSizeMinutes,
		TotalChunks:      s.totalChunks,
		CompletedChunks:  s.completedChunks,
		LastWatchedAt:    now,
		AddedAt:          s.addedAt,
	}
}

func (s *Session) refreshLocked() {
	if s.refresher != nil {
		s.refresher.StateChanged(s.snapshotLocked())
	}
}

// persistLocked writes progress through to the tracked item record. Untracked
// items stay in-memory only; the add-to-list action creates persistence. A
// failed write keeps the session state and is retried on the next mutating
// transition.
func (s *Session) persistLocked() {
	if !s.tracked {
		return
	}
	if err := s.store.WriteTrackedItem(s.itemLocked(s.now())); err != nil {
		log.WithFields(log.Fields{"itemId": s.itemID, "error": err}).Warn("progress write failed, keeping session state")
		return
	}
	s.broadcastLocked()
}

func (s *Session) broadcastLocked() {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.ProgressChanged(ProgressUpdate{
		ItemID:          s.itemID,
		CompletedChunks: s.completedChunks,
		TotalChunks:     s.totalChunks,
		Percentage:      percentage(s.completedChunks, s.totalChunks),
	})
}
