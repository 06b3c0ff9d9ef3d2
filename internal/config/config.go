// Package config loads daemon configuration from environment variables and
// an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the tubetally daemon.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// HTTP API settings
	BindAddr       string
	BindCandidates []string

	// Cache settings
	DataDir    string
	CacheBound int

	// Sync behavior
	FreshnessWindow time.Duration
	FetchDelay      time.Duration
	SPARetryBackoff time.Duration
	EvalTimeoutMS   int

	// Logging
	LogLevel string
	LogFile  string

	// Rate-limit notifications; empty disables them.
	NotifyEndpoint string

	// Browser launch
	LaunchBrowser bool
	StartURL      string
	ProfileDir    string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:      getEnvOrDefault("TUBETALLY_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:         getEnvIntOrDefault("TUBETALLY_CDP_PORT", 9222),
		BindAddr:        getEnvOrDefault("TUBETALLY_BIND_ADDR", "127.0.0.1:8418"),
		BindCandidates:  splitList(getEnvOrDefault("TUBETALLY_BIND_CANDIDATES", "127.0.0.1:8419,127.0.0.1:8420")),
		DataDir:         getEnvOrDefault("TUBETALLY_DATA_DIR", "./data"),
		CacheBound:      getEnvIntOrDefault("TUBETALLY_CACHE_BOUND", 250),
		FreshnessWindow: getEnvDurationOrDefault("TUBETALLY_FRESHNESS_WINDOW", 10*time.Minute),
		FetchDelay:      getEnvDurationOrDefault("TUBETALLY_FETCH_DELAY", 2*time.Second),
		SPARetryBackoff: getEnvDurationOrDefault("TUBETALLY_SPA_RETRY_BACKOFF", 500*time.Millisecond),
		EvalTimeoutMS:   getEnvIntOrDefault("TUBETALLY_EVAL_TIMEOUT_MS", 5000),
		LogLevel:        strings.ToLower(getEnvOrDefault("TUBETALLY_LOG_LEVEL", "info")),
		LogFile:         getEnvOrDefault("TUBETALLY_LOG_FILE", "logs/tubetally.log"),
		NotifyEndpoint:  getEnvOrDefault("TUBETALLY_NOTIFY_ENDPOINT", ""),
		LaunchBrowser:   getEnvBoolOrDefault("TUBETALLY_LAUNCH_BROWSER", false),
		StartURL:        getEnvOrDefault("TUBETALLY_START_URL", "https://www.youtube.com"),
		ProfileDir:      getEnvOrDefault("TUBETALLY_PROFILE_DIR", "./profile"),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.CacheBound < 1 {
		cfg.CacheBound = 250
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// CachePath returns the cache blob location inside the data directory.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "tubetally.json")
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}
