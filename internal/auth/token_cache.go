package auth

import (
	"sync"
	"time"
)

// TokenCache provides an in-memory cache for token validation
// This reduces database queries on the hot request path
type TokenCache struct {
	mu     sync.RWMutex
	tokens map[string]*cachedToken
	ttl    time.Duration
}

type cachedToken struct {
	expiresAt time.Time
	cachedAt  time.Time
}

// NewTokenCache creates a new token cache with the specified TTL
func NewTokenCache(ttl time.Duration) *TokenCache {
	if ttl == 0 {
		ttl = 5 * time.Minute // Default: 5 minutes cache
	}

	cache := &TokenCache{
		tokens: make(map[string]*cachedToken),
		ttl:    ttl,
	}

	// Start background cleanup goroutine
	go cache.cleanupLoop()

	return cache
}

// Valid reports whether a cached token exists and has not expired
func (c *TokenCache) Valid(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.tokens[token]
	if !exists {
		return false
	}

	// Check if cache entry has expired
	if time.Now().After(cached.cachedAt.Add(c.ttl)) {
		return false
	}

	// Check if token itself has expired
	if time.Now().After(cached.expiresAt) {
		return false
	}

	return true
}

// Set stores a token in the cache
func (c *TokenCache) Set(token string, expiresAt time.Time) {
	if token == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokens[token] = &cachedToken{
		expiresAt: expiresAt,
		cachedAt:  time.Now(),
	}
}

// Delete removes a token from the cache
func (c *TokenCache) Delete(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.tokens, token)
}

// Clear removes all tokens from the cache
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokens = make(map[string]*cachedToken)
}

// Size returns the number of cached tokens
func (c *TokenCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.tokens)
}

// cleanupLoop periodically removes expired entries from the cache
func (c *TokenCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

// cleanup removes expired entries
func (c *TokenCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for token, cached := range c.tokens {
		// Remove if cache entry expired or token expired
		if now.After(cached.cachedAt.Add(c.ttl)) || now.After(cached.expiresAt) {
			delete(c.tokens, token)
		}
	}
}
