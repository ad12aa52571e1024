package storage

import (
	"database/sql"
	"testing"
	"time"

	"github.com/larkela/chunkline/internal/tracker"
)

func newTestStore(t *testing.T, ensureSchema bool) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	store := &Store{db: db}
	if ensureSchema {
		if err := store.EnsureSchema(); err != nil {
			t.Fatalf("ensure schema: %v", err)
		}
	}

	return store
}

func TestEnsureSchema(t *testing.T) {
	store := newTestStore(t, false)

	if err := store.MigrateSchema(); err != nil {
		t.Fatalf("MigrateSchema() error = %v", err)
	}

	rows, err := store.db.Query(`
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
	`)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan sqlite_master: %v", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("sqlite_master rows: %v", err)
	}

	for _, table := range []string{"schema_migrations", "settings", "tracked_items", "pairing_credential", "client_sessions"} {
		if !found[table] {
			t.Fatalf("expected table %q to exist", table)
		}
	}

	var version int
	if err := store.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if version != 2 {
		t.Fatalf("unexpected schema version: got %d want 2", version)
	}
}

func TestSettingsSeededOnFirstRun(t *testing.T) {
	store := newTestStore(t, true)

	settings, err := store.ReadSettings()
	if err != nil {
		t.Fatalf("ReadSettings() error = %v", err)
	}

	want := tracker.DefaultSettings()
	if settings != want {
		t.Fatalf("ReadSettings() = %+v, want %+v", settings, want)
	}
}

func TestWriteSettingsRoundTrip(t *testing.T) {
	store := newTestStore(t, true)

	settings := tracker.Settings{
		DefaultChunkSizeMinutes: 10,
		DailyGoalMinutes:        45,
		EnableReminders:         false,
		ReminderTime:            "20:30",
		DarkMode:                true,
	}
	if err := store.WriteSettings(settings); err != nil {
		t.Fatalf("WriteSettings() error = %v", err)
	}

	got, err := store.ReadSettings()
	if err != nil {
		t.Fatalf("ReadSettings() error = %v", err)
	}
	if got != settings {
		t.Fatalf("ReadSettings() = %+v, want %+v", got, settings)
	}
}

func TestWriteTrackedItem(t *testing.T) {
	store := newTestStore(t, true)

	added := time.Unix(1700000000, 0)
	item := tracker.Item{
		ItemID:           "vid-1",
		Title:            "First",
		ChunkSizeMinutes: 5,
		TotalChunks:      6,
		CompletedChunks:  2,
		LastWatchedAt:    added.Add(10 * time.Minute),
		AddedAt:          added,
	}

	if err := store.WriteTrackedItem(item); err != nil {
		t.Fatalf("WriteTrackedItem() error = %v", err)
	}

	got, ok, err := store.GetTrackedItem("vid-1")
	if err != nil {
		t.Fatalf("GetTrackedItem() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected item to exist")
	}
	if got.Title != "First" || got.ChunkSizeMinutes != 5 || got.TotalChunks != 6 || got.CompletedChunks != 2 {
		t.Fatalf("unexpected stored values: %+v", got)
	}
	if got.AddedAt.Unix() != added.Unix() {
		t.Fatalf("unexpected added_at: got %d want %d", got.AddedAt.Unix(), added.Unix())
	}

	// Upsert updates progress but keeps the original added_at.
	item.CompletedChunks = 5
	item.AddedAt = added.Add(time.Hour)
	if err := store.WriteTrackedItem(item); err != nil {
		t.Fatalf("WriteTrackedItem() update error = %v", err)
	}

	got, ok, err = store.GetTrackedItem("vid-1")
	if err != nil {
		t.Fatalf("GetTrackedItem() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected item to exist after update")
	}
	if got.CompletedChunks != 5 {
		t.Fatalf("CompletedChunks = %d, want 5", got.CompletedChunks)
	}
	if got.AddedAt.Unix() != added.Unix() {
		t.Fatalf("added_at changed on upsert: got %d want %d", got.AddedAt.Unix(), added.Unix())
	}
}

func TestGetTrackedItemMissing(t *testing.T) {
	store := newTestStore(t, true)

	_, ok, err := store.GetTrackedItem("nope")
	if err != nil {
		t.Fatalf("GetTrackedItem() error = %v", err)
	}
	if ok {
		t.Fatalf("expected missing item")
	}
}

func TestReadTrackedItemsNewestFirst(t *testing.T) {
	store := newTestStore(t, true)

	base := time.Unix(1700000000, 0)
	for i, id := range []string{"old", "mid", "new"} {
		item := tracker.Item{
			ItemID:           id,
			Title:            id,
			ChunkSizeMinutes: 5,
			AddedAt:          base.Add(time.Duration(i) * time.Hour),
			LastWatchedAt:    base,
		}
		if err := store.WriteTrackedItem(item); err != nil {
			t.Fatalf("WriteTrackedItem(%q) error = %v", id, err)
		}
	}

	items, err := store.ReadTrackedItems()
	if err != nil {
		t.Fatalf("ReadTrackedItems() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("ReadTrackedItems() len = %d, want 3", len(items))
	}
	if items[0].ItemID != "new" || items[1].ItemID != "mid" || items[2].ItemID != "old" {
		t.Fatalf("unexpected order: %s, %s, %s", items[0].ItemID, items[1].ItemID, items[2].ItemID)
	}
}

func TestRemoveTrackedItem(t *testing.T) {
	store := newTestStore(t, true)

	item := tracker.Item{
		ItemID:           "vid-1",
		ChunkSizeMinutes: 5,
		AddedAt:          time.Unix(1700000000, 0),
		LastWatchedAt:    time.Unix(1700000000, 0),
	}
	if err := store.WriteTrackedItem(item); err != nil {
		t.Fatalf("WriteTrackedItem() error = %v", err)
	}

	if err := store.RemoveTrackedItem("vid-1"); err != nil {
		t.Fatalf("RemoveTrackedItem() error = %v", err)
	}

	_, ok, err := store.GetTrackedItem("vid-1")
	if err != nil {
		t.Fatalf("GetTrackedItem() error = %v", err)
	}
	if ok {
		t.Fatalf("expected item to be removed")
	}
}

func TestPairingHashRoundTrip(t *testing.T) {
	store := newTestStore(t, true)

	_, ok, err := store.GetPairingHash()
	if err != nil {
		t.Fatalf("GetPairingHash() error = %v", err)
	}
	if ok {
		t.Fatalf("expected no pairing hash on fresh store")
	}

	if err := store.SetPairingHash("hash-1", time.Unix(1700000000, 0)); err != nil {
		t.Fatalf("SetPairingHash() error = %v", err)
	}

	hash, ok, err := store.GetPairingHash()
	if err != nil {
		t.Fatalf("GetPairingHash() error = %v", err)
	}
	if !ok || hash != "hash-1" {
		t.Fatalf("GetPairingHash() = %q, %v; want hash-1, true", hash, ok)
	}
}

func TestTokenLifecycle(t *testing.T) {
	store := newTestStore(t, true)

	now := time.Unix(1700000000, 0)
	if err := store.CreateToken("tok-1", now, now.Add(time.Hour)); err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	if err := store.CreateToken("tok-2", now, now.Add(-time.Minute)); err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	expires, ok, err := store.GetToken("tok-1")
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if !ok || expires.Unix() != now.Add(time.Hour).Unix() {
		t.Fatalf("GetToken() = %v, %v", expires, ok)
	}

	if err := store.DeleteExpiredTokens(now); err != nil {
		t.Fatalf("DeleteExpiredTokens() error = %v", err)
	}
	_, ok, err = store.GetToken("tok-2")
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if ok {
		t.Fatalf("expected expired token to be gone")
	}

	if err := store.DeleteToken("tok-1"); err != nil {
		t.Fatalf("DeleteToken() error = %v", err)
	}
	_, ok, err = store.GetToken("tok-1")
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if ok {
		t.Fatalf("expected deleted token to be gone")
	}
}
