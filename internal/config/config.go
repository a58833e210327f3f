// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Data      DataConfig
	Server    ServerConfig
	Store     StoreConfig
	Feed      FeedConfig
	Search    SearchConfig
	Query     QueryConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the on-disk location of databases, the search index and the auth key.
type DataConfig struct {
	BasePath string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 0, SSE streams stay open)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	CORSOrigins  []string      // Allowed origins (default: *)
}

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// StoreConfig selects the storage engine.
type StoreConfig struct {
	Backend string
}

// FeedConfig holds the external feed client and sync settings.
type FeedConfig struct {
	BaseURL  string
	PageSize int
	// Timeout bounds a single page request.
	Timeout time.Duration
	// RPS and Burst shape outbound calls per user.
	RPS   float64
	Burst int
	// FetchAttempts is the total number of tries for a page on transient errors.
	FetchAttempts int
	RetryDelay    time.Duration
	// MaxPages stops a sync run after this many pages; 0 means no limit.
	MaxPages int
}

// SearchConfig holds candidate index configuration.
type SearchConfig struct {
	Enabled bool
}

// QueryConfig holds query engine configuration.
type QueryConfig struct {
	// Locale is the BCP 47 tag used to collate author names.
	Locale string
}

// AuthConfig holds session token configuration.
type AuthConfig struct {
	// TokenKey is the PASETO v4 symmetric key, set by auth.LoadOrGenerateKey in main.
	TokenKey      []byte
	TokenDuration time.Duration
}

// RateLimitConfig holds inbound rate limits.
type RateLimitConfig struct {
	SyncPerMinute int
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("likeshelf", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for databases, search index and keys")

	// Server flags
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed origins (default: *)")

	storeBackend := fs.String("store", "", "Storage backend: sqlite or badger (default: sqlite)")

	// Feed flags
	feedBaseURL := fs.String("feed-base-url", "", "Feed API base URL")
	feedPageSize := fs.String("feed-page-size", "", "Items per feed page, 10-100 (default: 100)")
	feedTimeout := fs.String("feed-timeout", "", "Per-page feed request timeout (default: 30s)")
	feedRPS := fs.String("feed-rps", "", "Outbound feed requests per second per user (default: 1)")
	feedBurst := fs.String("feed-burst", "", "Outbound feed burst per user (default: 5)")
	feedAttempts := fs.String("feed-attempts", "", "Attempts per page on transient errors (default: 3)")
	feedRetryDelay := fs.String("feed-retry-delay", "", "Initial retry delay (default: 500ms)")
	syncMaxPages := fs.String("sync-max-pages", "", "Pages per sync run, 0 for no limit (default: 0)")

	searchEnabled := fs.String("search-enabled", "", "Enable the search candidate index (default: true)")
	queryLocale := fs.String("collation-locale", "", "Locale for author ordering (default: en)")
	tokenDuration := fs.String("token-duration", "", "Session token lifetime (default: 720h)")
	syncPerMinute := fs.String("sync-rate", "", "Sync requests per user per minute (default: 6)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getConfigValue(*storeBackend, "STORE_BACKEND", BackendSQLite)),
		},
		Feed: FeedConfig{
			BaseURL:       getConfigValue(*feedBaseURL, "FEED_BASE_URL", "https://api.twitter.com"),
			PageSize:      getIntConfigValue(*feedPageSize, "FEED_PAGE_SIZE", 100),
			RPS:           getFloatConfigValue(*feedRPS, "FEED_RPS", 1),
			Burst:         getIntConfigValue(*feedBurst, "FEED_BURST", 5),
			FetchAttempts: getIntConfigValue(*feedAttempts, "FEED_FETCH_ATTEMPTS", 3),
			MaxPages:      getIntConfigValue(*syncMaxPages, "SYNC_MAX_PAGES", 0),
		},
		Search: SearchConfig{
			Enabled: getBoolConfigValue(*searchEnabled, "SEARCH_ENABLED", true),
		},
		Query: QueryConfig{
			Locale: getConfigValue(*queryLocale, "COLLATION_LOCALE", "en"),
		},
		RateLimit: RateLimitConfig{
			SyncPerMinute: getIntConfigValue(*syncPerMinute, "SYNC_RATE_PER_MINUTE", 6),
		},
	}

	durations := []struct {
		dst      *time.Duration
		flag     string
		envKey   string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "0s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Feed.Timeout, *feedTimeout, "FEED_TIMEOUT", "30s"},
		{&cfg.Feed.RetryDelay, *feedRetryDelay, "FEED_RETRY_DELAY", "500ms"},
		{&cfg.Auth.TokenDuration, *tokenDuration, "TOKEN_DURATION", "720h"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flag, d.envKey, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Store.Backend != BackendSQLite && c.Store.Backend != BackendBadger {
		return fmt.Errorf("invalid store backend: %s (must be sqlite or badger)", c.Store.Backend)
	}

	if c.Feed.PageSize < 10 || c.Feed.PageSize > 100 {
		return fmt.Errorf("feed page size must be between 10 and 100, got %d", c.Feed.PageSize)
	}
	if c.Feed.Timeout <= 0 {
		return errors.New("feed timeout must be positive")
	}
	if c.Feed.RPS <= 0 || c.Feed.Burst < 1 {
		return errors.New("feed rate and burst must be positive")
	}
	if c.Feed.FetchAttempts < 1 {
		return errors.New("feed fetch attempts must be at least 1")
	}
	if c.Feed.MaxPages < 0 {
		return errors.New("sync max pages cannot be negative")
	}
	if c.RateLimit.SyncPerMinute < 1 {
		return errors.New("sync rate must be at least 1 per minute")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "LikeShelf", "data")

	expanded, err := expandPath(c.Data.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
