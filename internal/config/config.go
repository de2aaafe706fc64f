package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/deploymenttheory/go-resource-downloader/internal/storage"
)

// Environment variables read by Load
const (
	EnvStateBackend   = "RD_STATE_BACKEND"
	EnvStatePath      = "RD_STATE_PATH"
	EnvDownloadDir    = "RD_DOWNLOAD_DIR"
	EnvScanTimeout    = "RD_SCAN_TIMEOUT"
	EnvRequestTimeout = "RD_REQUEST_TIMEOUT"
	EnvUserAgent      = "RD_USER_AGENT"
	EnvMaxRedirects   = "RD_MAX_REDIRECTS"
	EnvMetricsFile    = "RD_METRICS_FILE"
	EnvVerbose        = "RD_VERBOSE"
)

// DefaultUserAgent is sent with page and resource requests
const DefaultUserAgent = "Mozilla/5.0 (compatible; resource-downloader/1.0)"

// Config holds the application configuration
type Config struct {
	// State settings
	StateBackend string // json, sqlite or memory
	StatePath    string

	// Download settings
	DownloadDir  string
	UserAgent    string
	MaxRedirects int

	// Timeout settings
	ScanTimeout    time.Duration
	RequestTimeout time.Duration

	// Output settings
	MetricsFile string
	Verbose     bool
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first, then .env.local on top of it.
func Load() (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		StateBackend:   strings.ToLower(getEnv(EnvStateBackend, storage.BackendJSON)),
		StatePath:      getEnv(EnvStatePath, ""),
		DownloadDir:    getEnv(EnvDownloadDir, ""),
		UserAgent:      getEnv(EnvUserAgent, DefaultUserAgent),
		MaxRedirects:   getInt(EnvMaxRedirects, 10),
		ScanTimeout:    getDuration(EnvScanTimeout, "10s"),
		RequestTimeout: getDuration(EnvRequestTimeout, "60s"),
		MetricsFile:    getEnv(EnvMetricsFile, ""),
		Verbose:        getBool(EnvVerbose, false),
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}
	return nil
}

// applyDefaults fills paths that depend on the user's home directory
func (c *Config) applyDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if c.DownloadDir == "" {
		c.DownloadDir = filepath.Join(home, "Downloads")
	}
	if c.StatePath == "" && c.StateBackend != storage.BackendMemory {
		name := "resource-downloader.json"
		if c.StateBackend == storage.BackendSQLite {
			name = "resource-downloader.db"
		}
		c.StatePath = filepath.Join(home, "."+name)
	}
}

// Validate checks the configuration for values the commands cannot work with
func (c Config) Validate() error {
	switch c.StateBackend {
	case storage.BackendJSON, storage.BackendSQLite:
		if c.StatePath == "" {
			return fmt.Errorf("state path is required for the %s backend", c.StateBackend)
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("unknown state backend %q", c.StateBackend)
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("download directory is required")
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan timeout must be positive, got %v", c.ScanTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max redirects must not be negative, got %d", c.MaxRedirects)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getDuration falls back to defaultValue when the variable does not parse
func getDuration(key, defaultValue string) time.Duration {
	if duration, err := time.ParseDuration(getEnv(key, defaultValue)); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
