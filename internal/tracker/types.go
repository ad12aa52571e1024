package tracker

import "time"

// Settings is the process-wide settings record. The tracker reads it as an
// immutable snapshot at session construction; changes require a new session
// or an explicit reload.
type Settings struct {
	DefaultChunkSizeMinutes int    `json:"defaultChunkSizeMinutes"`
	DailyGoalMinutes        int    `json:"dailyGoalMinutes"`
	EnableReminders         bool   `json:"enableReminders"`
	ReminderTime            string `json:"reminderTime"` // "HH:MM"
	DarkMode                bool   `json:"darkMode"`
}

// DefaultSettings are applied on first run, before the user has saved anything.
func DefaultSettings() Settings {
	return Settings{
		DefaultChunkSizeMinutes: 5,
		DailyGoalMinutes:        30,
		EnableReminders:         true,
		ReminderTime:            "09:00",
	}
}

// Item is one tracked content item. Items are owned by the store; a session
// mirrors the progress fields and writes them back on every mutating transition.
type Item struct {
	ItemID           string    `json:"itemId"`
	Title            string    `json:"title"`
	ChunkSizeMinutes int       `json:"chunkSizeMinutes"`
	TotalChunks      int       `json:"totalChunks"`
	CompletedChunks  int       `json:"completedChunks"`
	LastWatchedAt    time.Time `json:"lastWatchedAt"`
	AddedAt          time.Time `json:"addedAt"`
}

// Complete reports whether every chunk of the item has been completed.
func (i Item) Complete() bool {
	return i.TotalChunks > 0 && i.CompletedChunks >= i.TotalChunks
}

// Percentage returns the completed share of the item in whole percent.
func (i Item) Percentage() int {
	return percentage(i.CompletedChunks, i.TotalChunks)
}

func percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(completed) / float64(total) * 100.0)
}

// Store is the persistence adapter consumed by the tracker. Single-record
// writes must be atomic; no multi-key transactional guarantee is assumed.
type Store interface {
	ReadSettings() (Settings, error)
	ReadTrackedItems() ([]Item, error)
	GetTrackedItem(itemID string) (Item, bool, error)
	WriteTrackedItem(item Item) error
	RemoveTrackedItem(itemID string) error
}

// ConfirmationKind distinguishes the two prompts a session can raise.
type ConfirmationKind string

const (
	KindRewatch    ConfirmationKind = "rewatch"
	KindCompletion ConfirmationKind = "completion"
)

// Resolution is the outcome of a confirmation prompt. Dismissal without an
// explicit choice behaves like Decline.
type Resolution string

const (
	ResolutionConfirm Resolution = "confirm"
	ResolutionDecline Resolution = "decline"
	ResolutionDismiss Resolution = "dismiss"
)

// ConfirmationRequest describes an outstanding prompt. At most one request is
// outstanding per session at any time.
type ConfirmationRequest struct {
	Kind            ConfirmationKind `json:"kind"`
	ItemID          string           `json:"itemId"`
	LandingIndex    int              `json:"landingIndex"`
	CompletedChunks int              `json:"completedChunks"`
	TotalChunks     int              `json:"totalChunks"`
}

// Snapshot is the session state handed to presentation surfaces. Surfaces
// re-derive markers, list, and highlight purely from it.
type Snapshot struct {
	ItemID               string  `json:"itemId"`
	Title                string  `json:"title"`
	Duration             float64 `json:"duration"`
	ChunkSizeMinutes     int     `json:"chunkSizeMinutes"`
	TotalChunks          int     `json:"totalChunks"`
	CompletedChunks      int     `json:"completedChunks"`
	LastConfirmedChunk   int     `json:"lastConfirmedChunkIndex"`
	Percentage           int     `json:"percentage"`
	ListVisible          bool    `json:"listVisible"`
	Tracked              bool    `json:"tracked"`
	AwaitingConfirmation bool    `json:"awaitingConfirmation"`
}

// ProgressUpdate is broadcast whenever progress is persisted.
type ProgressUpdate struct {
	ItemID          string `json:"itemId"`
	CompletedChunks int    `json:"completedChunks"`
	TotalChunks     int    `json:"totalChunks"`
	Percentage      int    `json:"percentage"`
}

// Surface is the confirmation/notification collaborator, implemented by the
// presentation layer. Calls must not block and must not re-enter the session.
type Surface interface {
	RequestConfirmation(req ConfirmationRequest)
	ShowAcknowledgment(message string)
	PausePlayback()
}

// Refresher receives a snapshot after every transition that changes
// completedChunks, totalChunks, or the confirmed chunk index.
type Refresher interface {
	StateChanged(s Snapshot)
}

// Broadcaster receives progress-changed notifications alongside persistence.
type Broadcaster interface {
	ProgressChanged(p ProgressUpdate)
}
