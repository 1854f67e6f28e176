package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  public_address: https://sync.example.com
nats:
  url: nats://localhost:4222
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Listen != ":3434" {
		t.Fatalf("expected default listen address, got %q", cfg.Server.Listen)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN == "" {
		t.Fatalf("expected sqlite store defaults, got %+v", cfg.Store)
	}
	if cfg.NATS.SubjectPrefix != "airtable.bases" {
		t.Fatalf("expected default subject prefix, got %q", cfg.NATS.SubjectPrefix)
	}
	if cfg.NATS.ReconnectWait != 2*time.Second {
		t.Fatalf("expected default reconnect wait, got %v", cfg.NATS.ReconnectWait)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadRequiresPublicAddress(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
nats:
  url: nats://localhost:4222
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing public_address")
	}
}

func TestNotificationURL(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  public_address: https://sync.example.com/
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := "https://sync.example.com" + NotificationPath
	if got := cfg.NotificationURL(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
