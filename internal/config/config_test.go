package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
connection:
  address: wss://echo.example.com/ws
  subprotocols: [chat, superchat]
  headers:
    Authorization: Bearer abc
  ping_interval: 15s
server:
  listen: ":9000"
  path: /echo
  echo: false
log:
  level: debug
  format: json
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Connection.Address != "wss://echo.example.com/ws" {
		t.Errorf("Connection.Address = %q, want %q", cfg.Connection.Address, "wss://echo.example.com/ws")
	}
	if len(cfg.Connection.Subprotocols) != 2 || cfg.Connection.Subprotocols[0] != "chat" {
		t.Errorf("Connection.Subprotocols = %v, want [chat superchat]", cfg.Connection.Subprotocols)
	}
	if cfg.Connection.PingInterval != 15*time.Second {
		t.Errorf("Connection.PingInterval = %v, want 15s", cfg.Connection.PingInterval)
	}
	if cfg.Server.Listen != ":9000" {
		t.Errorf("Server.Listen = %q, want %q", cfg.Server.Listen, ":9000")
	}
	if cfg.Server.EchoEnabled() {
		t.Error("Server.EchoEnabled() = true, want false")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_JOURNAL_PASSWORD", "secret123")
	t.Setenv("TEST_WS_HOST", "localhost:7000")

	yaml := `
connection:
  address: ws://${TEST_WS_HOST}/ws
journal:
  enabled: true
  database:
    host: localhost
    name: journal
    user: testuser
    password: ${TEST_JOURNAL_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Journal.Database.Password != "secret123" {
		t.Errorf("Journal.Database.Password = %q, want %q", cfg.Journal.Database.Password, "secret123")
	}
	if cfg.Connection.Address != "ws://localhost:7000/ws" {
		t.Errorf("Connection.Address = %q, want %q", cfg.Connection.Address, "ws://localhost:7000/ws")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read config file error", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempFile(t, "connection: [unclosed")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("Load() error = %v, want parse config yaml error", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
log:
  level: warn
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Connection.Address != DefaultAddress {
		t.Errorf("Connection.Address = %q, want default %q", cfg.Connection.Address, DefaultAddress)
	}
	if cfg.Connection.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("Connection.HandshakeTimeout = %v, want default %v", cfg.Connection.HandshakeTimeout, DefaultHandshakeTimeout)
	}
	if cfg.Server.Path != DefaultPath {
		t.Errorf("Server.Path = %q, want default %q", cfg.Server.Path, DefaultPath)
	}
	if len(cfg.Server.Subprotocols) != len(DefaultServerSubprotocols) {
		t.Errorf("Server.Subprotocols = %v, want default %v", cfg.Server.Subprotocols, DefaultServerSubprotocols)
	}
	if !cfg.Server.EchoEnabled() {
		t.Error("Server.EchoEnabled() = false, want default true")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Journal.Database.Port != DefaultDBPort {
		t.Errorf("Journal.Database.Port = %d, want default %d", cfg.Journal.Database.Port, DefaultDBPort)
	}
	if cfg.Journal.Table != DefaultJournalTable {
		t.Errorf("Journal.Table = %q, want default %q", cfg.Journal.Table, DefaultJournalTable)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestLoadAndValidate_EmptyPath(t *testing.T) {
	cfg, err := LoadAndValidate("")
	if err != nil {
		t.Fatalf("LoadAndValidate(\"\") failed: %v", err)
	}
	if cfg.Connection.Address != DefaultAddress {
		t.Errorf("Connection.Address = %q, want default %q", cfg.Connection.Address, DefaultAddress)
	}
}

func TestLoadAndValidate_Invalid(t *testing.T) {
	path := writeTempFile(t, "connection:\n  address: http://localhost/ws\n")

	_, err := LoadAndValidate(path)
	if err == nil || !strings.HasPrefix(err.Error(), "validate config: connection.address") {
		t.Errorf("LoadAndValidate() error = %v, want connection.address error", err)
	}
}

func TestValidate(t *testing.T) {
	validDB := DBConfig{Host: "localhost", Name: "journal", User: "user", Port: 5432, MaxConns: 4, MinConns: 1}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "defaults are valid",
			modify:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "bad address scheme",
			modify:  func(c *Config) { c.Connection.Address = "tcp://localhost:8090" },
			wantErr: `connection.address: scheme must be ws or wss, got "tcp"`,
		},
		{
			name:    "missing address host",
			modify:  func(c *Config) { c.Connection.Address = "ws:///ws" },
			wantErr: "connection.address: host is required",
		},
		{
			name: "pong timeout not above ping interval",
			modify: func(c *Config) {
				c.Connection.PingInterval = 30 * time.Second
				c.Connection.PongTimeout = 30 * time.Second
			},
			wantErr: "connection.pong_timeout (30s) must exceed ping_interval (30s)",
		},
		{
			name:    "invalid subprotocol token",
			modify:  func(c *Config) { c.Connection.Subprotocols = []string{"chat, superchat"} },
			wantErr: `connection.subprotocols: invalid token "chat, superchat"`,
		},
		{
			name:    "negative send queue",
			modify:  func(c *Config) { c.Connection.SendQueueSize = -1 },
			wantErr: "connection.send_queue_size must be >= 1",
		},
		{
			name:    "server path without slash",
			modify:  func(c *Config) { c.Server.Path = "ws" },
			wantErr: `server.path must start with /, got "ws"`,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: `log.level must be one of debug, info, warn, error, got "trace"`,
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Log.Format = "logfmt" },
			wantErr: `log.format must be text or json, got "logfmt"`,
		},
		{
			name:    "journal disabled skips database",
			modify:  func(c *Config) { c.Journal.Database = DBConfig{} },
			wantErr: "",
		},
		{
			name:    "journal missing host",
			modify:  func(c *Config) { c.Journal.Enabled = true },
			wantErr: "journal.database.host is required",
		},
		{
			name: "journal min_conns exceeds max_conns",
			modify: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database = validDB
				c.Journal.Database.MinConns = 10
			},
			wantErr: "journal.database.min_conns (10) cannot exceed max_conns (4)",
		},
		{
			name: "journal bad table name",
			modify: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database = validDB
				c.Journal.Table = "ws_journal; drop table x"
			},
			wantErr: `journal.table "ws_journal; drop table x" is not a valid identifier`,
		},
		{
			name: "journal valid",
			modify: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database = validDB
			},
			wantErr: "",
		},
		{
			name:    "metrics port out of range",
			modify:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestConnectionConfig_ManagerConfig(t *testing.T) {
	cfg := Default()
	cfg.Connection.Headers = map[string]string{"x-token": "abc"}
	cfg.Connection.Subprotocols = []string{"chat"}

	mc := cfg.Connection.ManagerConfig()

	if got := mc.Header.Get("X-Token"); got != "abc" {
		t.Errorf("Header X-Token = %q, want abc", got)
	}
	if mc.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("HandshakeTimeout = %v, want %v", mc.HandshakeTimeout, DefaultHandshakeTimeout)
	}
	if mc.SendQueueSize != DefaultSendQueueSize {
		t.Errorf("SendQueueSize = %d, want %d", mc.SendQueueSize, DefaultSendQueueSize)
	}

	// The returned slice must not alias the config.
	mc.Subprotocols[0] = "changed"
	if cfg.Connection.Subprotocols[0] != "chat" {
		t.Error("ManagerConfig aliased Subprotocols")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
