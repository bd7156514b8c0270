package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/matheus3301/precinct/internal/retry"
)

// Config represents the global ~/.precinct/config.toml.
type Config struct {
	DefaultSession    string    `toml:"default_session"`
	APIBaseURL        string    `toml:"api_base_url"`
	StreamBaseURL     string    `toml:"stream_base_url,omitempty"`
	HistoryPath       string    `toml:"history_path,omitempty"`
	HeartbeatInterval Duration  `toml:"heartbeat_interval"`
	DeliveryTimeout   Duration  `toml:"delivery_timeout"`
	EchoTolerance     Duration  `toml:"echo_tolerance"`
	Reconnect         Reconnect `toml:"reconnect"`
}

// Reconnect tunes stream reconnection backoff.
type Reconnect struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
}

// Duration is a time.Duration written as a Go duration string ("15s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	b := retry.Default()
	return &Config{
		DefaultSession:    "main",
		APIBaseURL:        "http://localhost:8000",
		HeartbeatInterval: Duration{25 * time.Second},
		DeliveryTimeout:   Duration{15 * time.Second},
		EchoTolerance:     Duration{10 * time.Second},
		Reconnect: Reconnect{
			MaxAttempts: b.MaxAttempts,
			BaseDelay:   Duration{b.BaseDelay},
			MaxDelay:    Duration{b.MaxDelay},
		},
	}
}

// Load reads config from path over the defaults. A missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks the URLs and timings.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_base_url %q: want an http(s) url", c.APIBaseURL)
	}
	if c.StreamBaseURL != "" {
		u, err := url.Parse(c.StreamBaseURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("stream_base_url %q: invalid url", c.StreamBaseURL)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("stream_base_url %q: unsupported scheme %q", c.StreamBaseURL, u.Scheme)
		}
	}
	if c.DeliveryTimeout.Duration <= 0 {
		return fmt.Errorf("delivery_timeout must be positive")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must not be negative")
	}
	return nil
}

// StreamBase returns the stream base url, defaulting to the api base.
func (c *Config) StreamBase() string {
	if c.StreamBaseURL != "" {
		return c.StreamBaseURL
	}
	return c.APIBaseURL
}

// Backoff returns the reconnection backoff.
func (c *Config) Backoff() retry.Config {
	b := retry.Default()
	b.MaxAttempts = c.Reconnect.MaxAttempts
	if c.Reconnect.BaseDelay.Duration > 0 {
		b.BaseDelay = c.Reconnect.BaseDelay.Duration
	}
	if c.Reconnect.MaxDelay.Duration > 0 {
		b.MaxDelay = c.Reconnect.MaxDelay.Duration
	}
	return b
}
