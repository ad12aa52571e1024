package reminder

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larkela/chunkline/internal/tracker"
)

// Store provides the settings and item state the scheduler reads
type Store interface {
	ReadSettings() (tracker.Settings, error)
	ReadTrackedItems() ([]tracker.Item, error)
}

// Notifier delivers a reminder to connected clients
type Notifier interface {
	Notify(title, message string)
}

// Scheduler fires a daily study reminder at the configured time.
// Each firing picks one incomplete tracked item at random.
type Scheduler struct {
	store    Store
	notifier Notifier
	log      *logrus.Logger

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool

	now func() time.Time
}

// New creates a reminder scheduler. Call Start to arm it.
func New(store Store, notifier Notifier, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Start arms the scheduler from the persisted settings
func (s *Scheduler) Start() {
	s.Reschedule()
}

// Reschedule re-reads settings and re-arms the daily timer.
// Called after every settings update.
func (s *Scheduler) Reschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.cancelLocked()

	settings, err := s.store.ReadSettings()
	if err != nil {
		s.log.WithFields(logrus.Fields{"error": err}).Warn("Failed to read settings for reminder")
		return
	}
	if !settings.EnableReminders {
		s.log.Debug("Reminders disabled")
		return
	}

	fireAt, err := nextFireTime(s.now(), settings.ReminderTime)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"reminder_time": settings.ReminderTime,
			"error":         err,
		}).Warn("Invalid reminder time, scheduler idle")
		return
	}

	s.armLocked(fireAt)
}

// Close stops the scheduler
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cancelLocked()
}

func (s *Scheduler) armLocked(fireAt time.Time) {
	s.gen++
	gen := s.gen
	delay := fireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })
	s.log.WithFields(logrus.Fields{"fire_at": fireAt.Format(time.RFC3339)}).Debug("Reminder armed")
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	// Re-arm for tomorrow before delivering.
	s.armLocked(s.now().Add(24 * time.Hour))
	s.mu.Unlock()

	s.deliver()
}

func (s *Scheduler) deliver() {
	items, err := s.store.ReadTrackedItems()
	if err != nil {
		s.log.WithFields(logrus.Fields{"error": err}).Warn("Failed to read items for reminder")
		return
	}

	item, ok := pickIncomplete(items)
	if !ok {
		s.log.Debug("No incomplete items, skipping reminder")
		return
	}

	title := item.Title
	if title == "" {
		title = item.ItemID
	}
	message := fmt.Sprintf("Time to continue \"%s\" (%d%% done)", title, item.Percentage())

	s.log.WithFields(logrus.Fields{"item_id": item.ItemID}).Info("Sending study reminder")
	s.notifier.Notify("Study reminder", message)
}

// pickIncomplete selects a random tracked item that still has chunks left
func pickIncomplete(items []tracker.Item) (tracker.Item, bool) {
	candidates := make([]tracker.Item, 0, len(items))
	for _, item := range items {
		if !item.Complete() {
			candidates = append(candidates, item)
		}
	}
	if len(candidates) == 0 {
		return tracker.Item{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// nextFireTime resolves an HH:MM wall-clock time to the next occurrence
// after now, rolling over to tomorrow when the time has already passed.
func nextFireTime(now time.Time, reminderTime string) (time.Time, error) {
	parsed, err := time.Parse("15:04", reminderTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing reminder time %q: %w", reminderTime, err)
	}

	fireAt := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if !fireAt.After(now) {
		fireAt = fireAt.Add(24 * time.Hour)
	}
	return fireAt, nil
}
