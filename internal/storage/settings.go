package storage

import (
	"fmt"

	"github.com/larkela/chunkline/internal/tracker"
)

// ReadSettings returns the singleton settings record. The row is seeded with
// defaults on first migration, so a missing row indicates a damaged database.
func (s *Store) ReadSettings() (tracker.Settings, error) {
	if s == nil || s.db == nil {
		return tracker.Settings{}, fmt.Errorf("storage: missing database connection")
	}

	var (
		settings        tracker.Settings
		enableReminders int
		darkMode        int
	)
	err := s.db.QueryRow(`
		SELECT default_chunk_size_minutes, daily_goal_minutes, enable_reminders, reminder_time, dark_mode
		FROM settings
		WHERE id = 1
	`).Scan(
		&settings.DefaultChunkSizeMinutes,
		&settings.DailyGoalMinutes,
		&enableReminders,
		&settings.ReminderTime,
		&darkMode,
	)
	if err != nil {
		return tracker.Settings{}, fmt.Errorf("storage: read settings: %w", err)
	}

	settings.EnableReminders = enableReminders != 0
	settings.DarkMode = darkMode != 0
	return settings, nil
}

// WriteSettings replaces the singleton settings record.
func (s *Store) WriteSettings(settings tracker.Settings) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	_, err := s.db.Exec(`
		INSERT INTO settings (id, default_chunk_size_minutes, daily_goal_minutes, enable_reminders, reminder_time, dark_mode)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			default_chunk_size_minutes=excluded.default_chunk_size_minutes,
			daily_goal_minutes=excluded.daily_goal_minutes,
			enable_reminders=excluded.enable_reminders,
			reminder_time=excluded.reminder_time,
			dark_mode=excluded.dark_mode
	`,
		settings.DefaultChunkSizeMinutes,
		settings.DailyGoalMinutes,
		boolToInt(settings.EnableReminders),
		settings.ReminderTime,
		boolToInt(settings.DarkMode),
	)
	if err != nil {
		return fmt.Errorf("storage: write settings: %w", err)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
