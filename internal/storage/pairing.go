package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// GetPairingHash returns the stored pairing password hash, if one exists.
func (s *Store) GetPairingHash() (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("storage: missing database connection")
	}

	var hash string
	err := s.db.QueryRow(`SELECT password_hash FROM pairing_credential WHERE id = 1`).Scan(&hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return hash, true, nil
}

func (s *Store) SetPairingHash(hash string, createdAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	_, err := s.db.Exec(`
		INSERT INTO pairing_credential (id, password_hash, created_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			password_hash=excluded.password_hash,
			created_at=excluded.created_at
	`, hash, createdAt.Unix())
	return err
}

func (s *Store) CreateToken(token string, createdAt, expiresAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	_, err := s.db.Exec(`
		INSERT INTO client_sessions (token, created_at, expires_at)
		VALUES (?, ?, ?)
	`, token, createdAt.Unix(), expiresAt.Unix())
	return err
}

func (s *Store) GetToken(token string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, fmt.Errorf("storage: missing database connection")
	}

	var expiresAt int64
	err := s.db.QueryRow(`SELECT expires_at FROM client_sessions WHERE token = ?`, token).Scan(&expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.Unix(expiresAt, 0), true, nil
}

func (s *Store) DeleteToken(token string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	_, err := s.db.Exec(`DELETE FROM client_sessions WHERE token = ?`, token)
	return err
}

func (s *Store) DeleteExpiredTokens(now time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage: missing database connection")
	}

	_, err := s.db.Exec(`DELETE FROM client_sessions WHERE expires_at <= ?`, now.Unix())
	return err
}
