package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const validYAML = `
logging:
  level: debug
  console: true
storage:
  path: ./wikiwatch.db
client:
  timeout: 20s
  rate_per_sec: 3
relay:
  interval: 30s
  timezone: UTC
metrics:
  enabled: true
  addr: "127.0.0.1:9190"
`

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Path != "./wikiwatch.db" {
		t.Fatalf("storage.path = %q", cfg.Storage.Path)
	}
	if cfg.Relay.Interval != "30s" {
		t.Fatalf("relay.interval = %q", cfg.Relay.Interval)
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return the committed config")
	}

	cc, err := cfg.ClientOptions()
	if err != nil {
		t.Fatalf("ClientOptions: %v", err)
	}
	if cc.Timeout != 20*time.Second || cc.RatePerSec != 3 {
		t.Fatalf("client options = %+v", cc)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", validYAML+"\nsurprise: 1\n"))
	if _, err := m.Load(); err == nil {
		t.Fatalf("unknown top-level key accepted")
	}
}

func TestLoadRejectsMissingStoragePath(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", "logging:\n  console: true\nstorage:\n  driver: sqlite\n"))
	if _, err := m.Load(); err == nil {
		t.Fatalf("config without storage.path accepted")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"bad interval", func(c *Config) { c.Relay.Interval = "soon" }},
		{"negative timeout", func(c *Config) { c.Client.Timeout = "-5s" }},
		{"bad timezone", func(c *Config) { c.Relay.Timezone = "Mars/Olympus" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range cases {
		cfg := &Config{Storage: StorageConfig{Path: "db"}}
		tc.mut(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: Validate accepted bad config", tc.name)
		}
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", " 1m "); err != nil || d != time.Minute {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "5 parsecs"); err == nil {
		t.Fatalf("garbage accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("default: got (%v, %v)", d, err)
	}
}

func TestJSONConfig(t *testing.T) {
	m := NewManager(writeFile(t, "config.json", `{"logging":{"console":true},"storage":{"path":"db.sqlite"}}`))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "db.sqlite" {
		t.Fatalf("storage.path = %q", cfg.Storage.Path)
	}
}

func TestJSONTrailingDataRejected(t *testing.T) {
	m := NewManager(writeFile(t, "config.json", `{"storage":{"path":"a"}}{"storage":{"path":"b"}}`))
	if _, err := m.Load(); err == nil {
		t.Fatalf("concatenated JSON documents accepted")
	}
}

func TestReloadPublishesValidatedConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", validYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// A rejected edit must not reach subscribers or replace the config.
	if err := os.WriteFile(path, []byte("logging:\n  level: loud\nstorage:\n  path: db\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config published: %+v", cfg)
	default:
	}

	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n  console: true\nstorage:\n  path: db\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("published config level = %q", cfg.Logging.Level)
		}
	default:
		t.Fatalf("valid reload not published")
	}
	if m.Get().Logging.Level != "warn" {
		t.Fatalf("committed config level = %q", m.Get().Logging.Level)
	}
}
