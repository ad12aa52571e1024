package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid pairing password")
	ErrNotPaired          = errors.New("no pairing credential configured")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

// Store defines the interface for pairing credential storage
type Store interface {
	GetPairingHash() (string, bool, error)
	SetPairingHash(hash string, createdAt time.Time) error

	CreateToken(token string, createdAt, expiresAt time.Time) error
	GetToken(token string) (time.Time, bool, error)
	DeleteToken(token string) error
	DeleteExpiredTokens(now time.Time) error
}

// Manager handles pairing and token validation for API clients
type Manager struct {
	store      Store
	tokenTTL   time.Duration
	tokenCache *TokenCache
}

// NewManager creates a new pairing manager
func NewManager(store Store, tokenTTL time.Duration) *Manager {
	if tokenTTL == 0 {
		tokenTTL = 30 * 24 * time.Hour // Default: 30 days
	}
	return &Manager{
		store:      store,
		tokenTTL:   tokenTTL,
		tokenCache: NewTokenCache(5 * time.Minute), // 5 minute cache TTL
	}
}

// GeneratePairingPassword generates a secure random pairing password
func GeneratePairingPassword() string {
	// Generate 16 random bytes
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based generation
		return fmt.Sprintf("pair-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(bytes)[:22] // 22 characters
}

// HashPassword hashes a pairing password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword verifies a pairing password against a hash
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateToken generates a secure random token
func GenerateToken() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback
		hash := sha256.Sum256([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
		return hex.EncodeToString(hash[:])
	}
	return hex.EncodeToString(bytes)
}

// InitializePairing creates the pairing credential if none exists.
// Returns the plaintext password exactly once, on first run.
func (m *Manager) InitializePairing() (string, error) {
	_, exists, err := m.store.GetPairingHash()
	if err != nil {
		return "", err
	}

	// Credential already exists
	if exists {
		return "", nil
	}

	password := GeneratePairingPassword()
	passwordHash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	if err := m.store.SetPairingHash(passwordHash, time.Now()); err != nil {
		return "", err
	}

	return password, nil
}

// Pair verifies the pairing password and issues a client token
func (m *Manager) Pair(password string) (string, time.Time, error) {
	hash, exists, err := m.store.GetPairingHash()
	if err != nil {
		return "", time.Time{}, err
	}
	if !exists {
		return "", time.Time{}, ErrNotPaired
	}

	if !VerifyPassword(password, hash) {
		return "", time.Time{}, ErrInvalidCredentials
	}

	token := GenerateToken()
	now := time.Now()
	expiresAt := now.Add(m.tokenTTL)

	if err := m.store.CreateToken(token, now, expiresAt); err != nil {
		return "", time.Time{}, err
	}

	// Cache the token for faster validation
	if m.tokenCache != nil {
		m.tokenCache.Set(token, expiresAt)
	}

	return token, expiresAt, nil
}

// Revoke invalidates a client token
func (m *Manager) Revoke(token string) error {
	// Remove from cache first
	if m.tokenCache != nil {
		m.tokenCache.Delete(token)
	}

	return m.store.DeleteToken(token)
}

// Validate checks a client token with caching
func (m *Manager) Validate(token string) error {
	// Try cache first for performance
	if m.tokenCache != nil && m.tokenCache.Valid(token) {
		return nil
	}

	// Cache miss - query database
	expiresAt, exists, err := m.store.GetToken(token)
	if err != nil {
		return err
	}
	if !exists {
		return ErrInvalidToken
	}

	if time.Now().After(expiresAt) {
		_ = m.store.DeleteToken(token)
		if m.tokenCache != nil {
			m.tokenCache.Delete(token)
		}
		return ErrTokenExpired
	}

	// Cache the token for future requests
	if m.tokenCache != nil {
		m.tokenCache.Set(token, expiresAt)
	}

	return nil
}

// ResetPairing replaces the pairing credential with a fresh password.
// Existing client tokens stay valid until they expire.
func (m *Manager) ResetPairing() (string, error) {
	password := GeneratePairingPassword()
	passwordHash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	if err := m.store.SetPairingHash(passwordHash, time.Now()); err != nil {
		return "", err
	}

	return password, nil
}

// CleanupExpiredTokens removes expired client tokens
func (m *Manager) CleanupExpiredTokens() error {
	return m.store.DeleteExpiredTokens(time.Now())
}
