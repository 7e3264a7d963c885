// Package config reads retrace's runtime configuration from environment
// variables with typed defaults. Filesystem defaults are computed from the
// user's platform directories at load time, never compiled in.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

type Config struct {
	// Address is the HTTP control-plane listen address.
	Address string

	// DataDir holds retrace's own state: checkpoints and the sqlite store.
	DataDir string

	// RewindRoot is the Rewind archive's chunk directory.
	RewindRoot string

	CaptureIntervalSeconds float64
	BatchSize              int
	VideoDelay             time.Duration

	// OCREndpoint is the text-extraction service URL; empty disables
	// extraction (frames import without text).
	OCREndpoint string
	OCRAPIKey   string

	DB DBConfig
}

type DBConfig struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
	Migrations string
}

const (
	defaultAddress         = ":8080"
	defaultCaptureInterval = 2.0
	defaultBatchSize       = 50
	defaultVideoDelay      = 200 * time.Millisecond
)

// Load builds the configuration from the environment.
func Load() (*Config, error) {
	dataDir := readEnv("RETRACE_DATA_DIR", defaultDataDir())
	cfg := &Config{
		Address:                readEnv("RETRACE_ADDRESS", defaultAddress),
		DataDir:                dataDir,
		RewindRoot:             readEnv("RETRACE_REWIND_ROOT", defaultRewindRoot()),
		CaptureIntervalSeconds: parseFloat("RETRACE_CAPTURE_INTERVAL_SECONDS", defaultCaptureInterval),
		BatchSize:              parseInt("RETRACE_BATCH_SIZE", defaultBatchSize),
		VideoDelay:             parseDuration("RETRACE_VIDEO_DELAY", defaultVideoDelay),
		OCREndpoint:            readEnv("RETRACE_OCR_ENDPOINT", ""),
		OCRAPIKey:              readEnv("RETRACE_OCR_API_KEY", ""),
	}

	cfg.DB = DBConfig{
		Type:       readEnv("DB_TYPE", "sqlite"),
		Host:       readEnv("DB_HOST", "localhost"),
		Port:       parseInt("DB_PORT", 5432),
		User:       readEnv("DB_USER", "retrace"),
		Password:   readEnv("DB_PASSWORD", ""),
		Name:       readEnv("DB_NAME", "retrace"),
		SQLitePath: readEnv("DB_PATH", filepath.Join(dataDir, "retrace.db")),
		Migrations: readEnv("MIGRATIONS_PATH", "./migrations"),
	}

	if cfg.CaptureIntervalSeconds <= 0 {
		cfg.CaptureIntervalSeconds = defaultCaptureInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return cfg, nil
}

// CheckpointDir is where per-source import checkpoints live.
func (c *Config) CheckpointDir() string {
	return filepath.Join(c.DataDir, "checkpoints")
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "./retrace-data"
	}
	return filepath.Join(base, "retrace")
}

// defaultRewindRoot points at the Rewind recorder's chunk archive where the
// platform has a conventional location for it.
func defaultRewindRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "com.memoryvault.MemoryVault", "chunks")
	}
	return filepath.Join(home, ".rewind", "chunks")
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
