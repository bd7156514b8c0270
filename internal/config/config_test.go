package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.HistoryPath = "/api/chats/dms/{peer}/messages/"
	cfg.DeliveryTimeout = Duration{20 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" || loaded.HistoryPath != cfg.HistoryPath {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.DeliveryTimeout.Duration != 20*time.Second {
		t.Errorf("DeliveryTimeout = %v, want 20s", loaded.DeliveryTimeout)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "api_base_url = \"https://portal.example\"\n\n[reconnect]\nmax_attempts = 3\nbase_delay = \"250ms\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EchoTolerance.Duration != 10*time.Second {
		t.Errorf("EchoTolerance = %v, want default 10s", cfg.EchoTolerance)
	}
	b := cfg.Backoff()
	if b.MaxAttempts != 3 || b.BaseDelay != 250*time.Millisecond || b.MaxDelay != 30*time.Second {
		t.Errorf("Backoff() = %+v", b)
	}
	if cfg.StreamBase() != "https://portal.example" {
		t.Errorf("StreamBase() = %q", cfg.StreamBase())
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("delivery_timeout = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for bad duration")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/nonexistent/config.toml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.DefaultSession != "main" {
		t.Errorf("DefaultSession = %q, want main", cfg.DefaultSession)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"ws stream base", func(c *Config) { c.StreamBaseURL = "wss://stream.example" }, false},
		{"ftp api", func(c *Config) { c.APIBaseURL = "ftp://portal" }, true},
		{"no host", func(c *Config) { c.APIBaseURL = "http://" }, true},
		{"bad stream scheme", func(c *Config) { c.StreamBaseURL = "tcp://x" }, true},
		{"zero delivery timeout", func(c *Config) { c.DeliveryTimeout = Duration{} }, true},
		{"negative attempts", func(c *Config) { c.Reconnect.MaxAttempts = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
