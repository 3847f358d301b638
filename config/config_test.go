package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DB_DSN", "DATA_DIR", "WA_CLIENT_ID", "WA_AUTH_DIR", "WA_RESTART_DELAY", "WA_MANUAL_RESTART_DELAY", "WA_AUTO_START", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ClientID != DefaultClientID {
		t.Errorf("client id = %q", cfg.ClientID)
	}
	if cfg.AuthDir != filepath.Join("data", "whatsapp_auth") {
		t.Errorf("auth dir = %q", cfg.AuthDir)
	}
	if cfg.RestartDelay != 5*time.Second || cfg.ManualRestartDelay != 2*time.Second {
		t.Errorf("delays = %v/%v", cfg.RestartDelay, cfg.ManualRestartDelay)
	}
	if cfg.DBMaxOpenConns != 10 || cfg.DBMaxIdleConns != 5 {
		t.Errorf("pool = %d/%d", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	}
	if !cfg.AutoStart {
		t.Error("expected auto start by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/wa")
	t.Setenv("WA_AUTH_DIR", "")
	t.Setenv("WA_RESTART_DELAY", "7")
	t.Setenv("WA_MANUAL_RESTART_DELAY", "1500ms")
	t.Setenv("WA_AUTO_START", "0")
	t.Setenv("WA_QR_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.AuthDir != filepath.Join("/var/lib/wa", "whatsapp_auth") {
		t.Errorf("auth dir = %q", cfg.AuthDir)
	}
	if cfg.RestartDelay != 7*time.Second {
		t.Errorf("restart delay = %v", cfg.RestartDelay)
	}
	if cfg.ManualRestartDelay != 1500*time.Millisecond {
		t.Errorf("manual restart delay = %v", cfg.ManualRestartDelay)
	}
	if cfg.AutoStart {
		t.Error("expected auto start disabled")
	}
	if cfg.QRFile != "" {
		t.Errorf("explicit empty WA_QR_FILE should disable the sink, got %q", cfg.QRFile)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("WA_RESTART_DELAY", "soon")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "WA_RESTART_DELAY") {
		t.Fatalf("expected WA_RESTART_DELAY error, got %v", err)
	}
	t.Setenv("WA_RESTART_DELAY", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "ten")
	if _, err := Load(); err == nil {
		t.Fatal("expected DB_MAX_OPEN_CONNS error")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "")
	t.Setenv("DB_MAX_IDLE_CONNS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.ClientID = "../escape"
	cfg.DBMaxIdleConns = cfg.DBMaxOpenConns + 1
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"WA_CLIENT_ID", "DB_MAX_IDLE_CONNS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %s", err, want)
		}
	}
}
