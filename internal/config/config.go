package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all daemon configuration
type Config struct {
	// Server configuration
	Port string
	Host string

	// Storage configuration
	DataDir string

	// Auth configuration
	AuthEnabled bool
	TokenTTL    time.Duration

	// Tracker tuning
	ConfirmationWait time.Duration
	DebounceWindow   time.Duration

	// API surface
	AllowedOrigins []string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Port:             getEnvOrDefault("CHUNKLINE_PORT", "8632"),
		Host:             getEnvOrDefault("CHUNKLINE_HOST", "127.0.0.1"),
		DataDir:          getEnvOrDefault("CHUNKLINE_DATA_DIR", defaultDataDir()),
		AuthEnabled:      getEnvBoolOrDefault("CHUNKLINE_AUTH", true),
		LogLevel:         getEnvOrDefault("CHUNKLINE_LOG_LEVEL", "info"),
		AllowedOrigins:   []string{getEnvOrDefault("CHUNKLINE_ALLOWED_ORIGIN", "*")},
		TokenTTL:         getEnvDurationOrDefault("CHUNKLINE_TOKEN_TTL", 30*24*time.Hour),
		ConfirmationWait: getEnvDurationOrDefault("CHUNKLINE_CONFIRMATION_WAIT", 30*time.Second),
		DebounceWindow:   getEnvDurationOrDefault("CHUNKLINE_DEBOUNCE_WINDOW", 500*time.Millisecond),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ServerAddress returns the host:port listen address
func (c *Config) ServerAddress() string {
	return c.Host + ":" + c.Port
}

// DatabasePath returns the sqlite database location under the data directory
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "chunkline.db")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.ConfirmationWait <= 0 {
		return fmt.Errorf("confirmation wait must be positive")
	}
	if c.DebounceWindow <= 0 {
		return fmt.Errorf("debounce window must be positive")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".chunkline")
}

// Helper functions
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
