package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.PingInterval != 25*time.Second || cfg.Typing.Idle != time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("addr: \":9000\"\nsuperuser_role: ADMIN\ntyping:\n  idle: 2s\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHAT_ADDR", ":9100")
	t.Setenv("CHAT_NOTIFICATIONS_HISTORY_SIZE", "10")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Fatalf("env should override file, got %q", cfg.Addr)
	}
	if cfg.SuperuserRole != "ADMIN" {
		t.Fatalf("file should override default, got %q", cfg.SuperuserRole)
	}
	if cfg.Typing.Idle != 2*time.Second {
		t.Fatalf("nested file value not applied: %v", cfg.Typing.Idle)
	}
	if cfg.Notifications.HistorySize != 10 {
		t.Fatalf("nested env value not applied: %d", cfg.Notifications.HistorySize)
	}
}

func TestUpdateFromKeepsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":7000"})
	if cfg.Addr != ":7000" || cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("unexpected merge result: %+v", cfg)
	}
}
