package storage

import "fmt"

const schemaSettings = `
CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	default_chunk_size_minutes INTEGER NOT NULL CHECK (default_chunk_size_minutes > 0),
	daily_goal_minutes INTEGER NOT NULL CHECK (daily_goal_minutes > 0),
	enable_reminders INTEGER NOT NULL DEFAULT 1,
	reminder_time TEXT NOT NULL,
	dark_mode INTEGER NOT NULL DEFAULT 0
);`

// First-run defaults; merged over by the user's saved settings thereafter.
const schemaSettingsSeed = `
INSERT OR IGNORE INTO settings (id, default_chunk_size_minutes, daily_goal_minutes, enable_reminders, reminder_time, dark_mode)
VALUES (1, 5, 30, 1, '09:00', 0);`

const schemaTrackedItems = `
CREATE TABLE IF NOT EXISTS tracked_items (
	item_id TEXT PRIMARY KEY,
	title TEXT,
	chunk_size_minutes INTEGER NOT NULL CHECK (chunk_size_minutes > 0),
	total_chunks INTEGER NOT NULL DEFAULT 0 CHECK (total_chunks >= 0),
	completed_chunks INTEGER NOT NULL DEFAULT 0 CHECK (completed_chunks >= 0),
	last_watched_at INTEGER NOT NULL DEFAULT 0,
	added_at INTEGER NOT NULL
);`

const schemaTrackedItemsIndexes = `
CREATE INDEX IF NOT EXISTS idx_tracked_items_added_at ON tracked_items(added_at DESC);
CREATE INDEX IF NOT EXISTS idx_tracked_items_last_watched ON tracked_items(last_watched_at DESC);`

const schemaPairingCredential = `
CREATE TABLE IF NOT EXISTS pairing_credential (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);`

const schemaClientSessions = `
CREATE TABLE IF NOT EXISTS client_sessions (
	token TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);`

const schemaClientSessionsIndexes = `
CREATE INDEX IF NOT EXISTS idx_client_sessions_expires_at ON client_sessions(expires_at);`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY
);`

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			schemaSettings,
			schemaSettingsSeed,
			schemaTrackedItems,
			schemaTrackedItemsIndexes,
		},
	},
	{
		version: 2,
		statements: []string{
			schemaPairingCredential,
			schemaClientSessions,
			schemaClientSessionsIndexes,
		},
	},
}

func (s *Store) EnsureSchema() error {
	return s.MigrateSchema()
}

func (s *Store) MigrateSchema() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	if _, err := s.db.Exec(schemaMigrations); err != nil {
		return fmt.Errorf("storage: create schema_migrations table: %w", err)
	}

	current, err := s.currentSchemaVersion()
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.version <= current {
			continue
		}
		if err := s.applyMigration(migration); err != nil {
			return err
		}
		current = migration.version
	}

	return nil
}

func (s *Store) currentSchemaVersion() (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage: missing database connection")
	}

	var version int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("storage: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) applyMigration(migration migration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: start migration %d: %w", migration.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, statement := range migration.statements {
		if _, err = tx.Exec(statement); err != nil {
			return fmt.Errorf("storage: migration %d failed: %w", migration.version, err)
		}
	}

	if _, err = tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, migration.version); err != nil {
		return fmt.Errorf("storage: record migration %d: %w", migration.version, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit migration %d: %w", migration.version, err)
	}
	return nil
}
