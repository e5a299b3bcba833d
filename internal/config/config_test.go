// ABOUTME: Tests for configuration loading, validation, and env expansion
// ABOUTME: Covers YAML and TOML parsing plus duration handling

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "troupe.yaml", `
server:
  http_addr: ":9090"
database:
  path: /tmp/troupe.db
heartbeat:
  interval: 5m
  parallelism: 8
executor:
  runner: subprocess
  command: /usr/local/bin/agent
  args: ["--json"]
logging:
  level: debug
  format: json
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "/tmp/troupe.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Heartbeat.Interval != 5*time.Minute {
		t.Errorf("Heartbeat.Interval = %v, want 5m", cfg.Heartbeat.Interval)
	}
	if cfg.Heartbeat.Parallelism != 8 {
		t.Errorf("Heartbeat.Parallelism = %d, want 8", cfg.Heartbeat.Parallelism)
	}
	if cfg.Executor.Runner != "subprocess" {
		t.Errorf("Executor.Runner = %q", cfg.Executor.Runner)
	}
	if cfg.Executor.Command != "/usr/local/bin/agent" {
		t.Errorf("Executor.Command = %q", cfg.Executor.Command)
	}
	if len(cfg.Executor.Args) != 1 || cfg.Executor.Args[0] != "--json" {
		t.Errorf("Executor.Args = %v", cfg.Executor.Args)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default /metrics", cfg.Metrics.Path)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "troupe.toml", `
[server]
http_addr = ":7070"

[database]
path = "troupe.db"

[heartbeat]
interval = "30s"

[executor]
runner = "stub"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPAddr != ":7070" {
		t.Errorf("HTTPAddr = %q, want :7070", cfg.Server.HTTPAddr)
	}
	if cfg.Heartbeat.Interval != 30*time.Second {
		t.Errorf("Heartbeat.Interval = %v, want 30s", cfg.Heartbeat.Interval)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "minimal.yaml", `
database:
  path: test.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want default :8080", cfg.Server.HTTPAddr)
	}
	if cfg.Executor.Runner != "stub" {
		t.Errorf("Executor.Runner = %q, want default stub", cfg.Executor.Runner)
	}
	if cfg.Heartbeat.Interval != 15*time.Minute {
		t.Errorf("Heartbeat.Interval = %v, want default 15m", cfg.Heartbeat.Interval)
	}
	if cfg.Heartbeat.Parallelism != 4 {
		t.Errorf("Heartbeat.Parallelism = %d, want default 4", cfg.Heartbeat.Parallelism)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("TROUPE_TEST_DB", "/data/expanded.db")
	t.Setenv("TROUPE_TEST_KEY", "tskey-secret")

	path := writeConfig(t, "env.yaml", `
database:
  path: ${TROUPE_TEST_DB}
tailscale:
  enabled: true
  hostname: troupe
  auth_key: ${TROUPE_TEST_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != "/data/expanded.db" {
		t.Errorf("Database.Path = %q, want expanded value", cfg.Database.Path)
	}
	if cfg.Tailscale.AuthKey != "tskey-secret" {
		t.Errorf("Tailscale.AuthKey = %q, want expanded value", cfg.Tailscale.AuthKey)
	}
}

func TestLoadUnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, "env.yaml", `
database:
  path: "x${TROUPE_DEFINITELY_UNSET_VAR}y.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != "xy.db" {
		t.Errorf("Database.Path = %q, want xy.db", cfg.Database.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, "bad.yaml", `
heartbeat:
  interval: soon
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadNegativeDuration(t *testing.T) {
	path := writeConfig(t, "bad.yaml", `
heartbeat:
  interval: -5m
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"tailscale without hostname", func(c *Config) {
			c.Tailscale.Enabled = true
			c.Tailscale.Hostname = ""
		}, true},
		{"subprocess without command", func(c *Config) {
			c.Executor.Runner = "subprocess"
		}, true},
		{"unknown runner", func(c *Config) {
			c.Executor.Runner = "telepathy"
		}, true},
		{"unknown log level", func(c *Config) {
			c.Logging.Level = "verbose"
		}, true},
		{"anthropic runner", func(c *Config) {
			c.Executor.Runner = "anthropic"
			c.Executor.Model = "claude-sonnet-4-20250514"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
