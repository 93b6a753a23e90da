// Package config loads, validates and hot-reloads the service
// configuration. Files are YAML or JSON; YAML is coerced to JSON so both
// formats share one strict decoder. All durations are Go duration
// strings ("500ms", "10s", "1m").
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wikiwatch/internal/storage"
	"wikiwatch/internal/wiki"
	logx "wikiwatch/pkg/logx"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Client  ClientConfig  `json:"client,omitempty"`
	Relay   RelayConfig   `json:"relay,omitempty"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"` // trace|debug|info|warn|error
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // default "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ClientConfig tunes the shared outbound API client.
type ClientConfig struct {
	UserAgent  string `json:"user_agent,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// RelayConfig controls the poll loop. Schedule, when set, is a standard
// 5-field cron expression and takes precedence over Interval. Timezone
// names the location day-bucketed activity timestamps are read in.
type RelayConfig struct {
	Interval string `json:"interval,omitempty"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Grace    string `json:"grace,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9190"
}

// Validate rejects configs the service cannot start with. Hot reload
// runs it before committing, so a bad edit never reaches subscribers.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("client.timeout", c.Client.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("relay.interval", c.Relay.Interval); err != nil {
		return err
	}
	if _, err := ParseDurationField("relay.grace", c.Relay.Grace); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Relay.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("relay.timezone: %w", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	return nil
}

// LogxConfig maps the logging section onto the logx service config.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// StorageOptions maps the storage section onto the store config.
func (c *Config) StorageOptions() (storage.Config, error) {
	busy, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      c.Storage.Driver,
		Path:        c.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

// ClientOptions maps the client section onto the wiki client config.
func (c *Config) ClientOptions() (wiki.ClientConfig, error) {
	timeout, err := ParseDurationField("client.timeout", c.Client.Timeout)
	if err != nil {
		return wiki.ClientConfig{}, err
	}
	return wiki.ClientConfig{
		UserAgent:  c.Client.UserAgent,
		Timeout:    timeout,
		RatePerSec: c.Client.RatePerSec,
	}, nil
}
