// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Use Validate before wiring components that depend on the values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultClientID           = "whatsapp-dashboard-client"
	DefaultRestartDelay       = 5 * time.Second
	DefaultManualRestartDelay = 2 * time.Second
)

type Config struct {
	// Database
	DBDsn             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Storage
	DataDir string

	// WhatsApp session
	ClientID           string
	AuthDir            string
	QRFile             string // empty disables the file sink
	RestartDelay       time.Duration
	ManualRestartDelay time.Duration
	AutoStart          bool

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. Malformed numbers or
// durations are reported as errors rather than silently replaced.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// DB
	cfg.DBDsn = os.Getenv("DB_DSN")
	if cfg.DBDsn == "" {
		// Default to local Postgres (matches docker-compose).
		cfg.DBDsn = "postgres://wa:wa@localhost:5432/wa?sslmode=disable"
	}
	if cfg.DBMaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.DBMaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	if cfg.DBConnMaxLifetime, err = envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return nil, err
	}

	// Storage
	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	// WhatsApp
	cfg.ClientID = os.Getenv("WA_CLIENT_ID")
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	cfg.AuthDir = os.Getenv("WA_AUTH_DIR")
	if cfg.AuthDir == "" {
		cfg.AuthDir = filepath.Join(cfg.DataDir, "whatsapp_auth")
	}
	if v, ok := os.LookupEnv("WA_QR_FILE"); ok {
		cfg.QRFile = v
	} else {
		cfg.QRFile = filepath.Join(cfg.DataDir, "qrcode.txt")
	}
	if cfg.RestartDelay, err = envDuration("WA_RESTART_DELAY", DefaultRestartDelay); err != nil {
		return nil, err
	}
	if cfg.ManualRestartDelay, err = envDuration("WA_MANUAL_RESTART_DELAY", DefaultManualRestartDelay); err != nil {
		return nil, err
	}
	cfg.AutoStart = os.Getenv("WA_AUTO_START") != "0"

	// HTTP
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// Validate checks values that Load accepts syntactically but that the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.DBDsn == "" {
		problems = append(problems, "DB_DSN is empty")
	}
	if c.DBMaxOpenConns < 1 {
		problems = append(problems, "DB_MAX_OPEN_CONNS must be >= 1")
	}
	if c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		problems = append(problems, "DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS")
	}
	if c.ClientID == "" || strings.ContainsAny(c.ClientID, `/\`) {
		problems = append(problems, "WA_CLIENT_ID must be non-empty and contain no path separators")
	}
	if c.AuthDir == "" {
		problems = append(problems, "WA_AUTH_DIR is empty")
	}
	if c.RestartDelay <= 0 || c.ManualRestartDelay <= 0 {
		problems = append(problems, "restart delays must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// envDuration accepts Go durations ("5s") or a bare number of seconds.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
