package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/larkela/chunkline/internal/tracker"
)

// ReadTrackedItems returns all tracked items, newest-added first.
func (s *Store) ReadTrackedItems() ([]tracker.Item, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage: missing database connection")
	}

	rows, err := s.db.Query(`
		SELECT item_id, title, chunk_size_minutes, total_chunks, completed_chunks, last_watched_at, added_at
		FROM tracked_items
		ORDER BY added_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []tracker.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) GetTrackedItem(itemID string) (tracker.Item, bool, error) {
	if s == nil || s.db == nil {
		return tracker.Item{}, false, fmt.Errorf("storage: missing database connection")
	}

	row := s.db.QueryRow(`
		SELECT item_id, title, chunk_size_minutes, total_chunks, completed_chunks, last_watched_at, added_at
		FROM tracked_items
		WHERE item_id = ?
	`, itemID)

	item, err := scanItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return tracker.Item{}, false, nil
		}
		return tracker.Item{}, false, err
	}
	return item, true, nil
}

// WriteTrackedItem upserts by item id.
func (s *Store) WriteTrackedItem(item tracker.Item) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	_, err := s.db.Exec(`
		INSERT INTO tracked_items (item_id, title, chunk_size_minutes, total_chunks, completed_chunks, last_watched_at, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			title=excluded.title,
			chunk_size_minutes=excluded.chunk_size_minutes,
			total_chunks=excluded.total_chunks,
			completed_chunks=excluded.completed_chunks,
			last_watched_at=excluded.last_watched_at
	`,
		item.ItemID,
		nullString(item.Title),
		item.ChunkSizeMinutes,
		item.TotalChunks,
		item.CompletedChunks,
		item.LastWatchedAt.Unix(),
		item.AddedAt.Unix(),
	)
	return err
}

func (s *Store) RemoveTrackedItem(itemID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	_, err := s.db.Exec(`DELETE FROM tracked_items WHERE item_id = ?`, itemID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (tracker.Item, error) {
	var (
		item          tracker.Item
		title         sql.NullString
		lastWatchedAt int64
		addedAt       int64
	)
	err := row.Scan(
		&item.ItemID,
		&title,
		&item.ChunkSizeMinutes,
		&item.TotalChunks,
		&item.CompletedChunks,
		&lastWatchedAt,
		&addedAt,
	)
	if err != nil {
		return tracker.Item{}, err
	}

	item.Title = title.String
	item.LastWatchedAt = time.Unix(lastWatchedAt, 0)
	item.AddedAt = time.Unix(addedAt, 0)
	return item, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
