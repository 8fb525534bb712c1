package config

import (
	"net/http"
	"time"

	"github.com/rickgao/wsclient/internal/connection"
)

// Config is the root configuration shared by wsclient and echoserver.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Journal    JournalConfig    `yaml:"journal"`
}

// ConnectionConfig holds client connection manager settings.
type ConnectionConfig struct {
	Address          string            `yaml:"address"`       // Default ws:// or wss:// URL
	Subprotocols     []string          `yaml:"subprotocols"`  // Requested, in preference order
	Headers          map[string]string `yaml:"headers"`       // Extra handshake headers
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration     `yaml:"write_timeout"`
	PingInterval     time.Duration     `yaml:"ping_interval"`
	PongTimeout      time.Duration     `yaml:"pong_timeout"`
	SendQueueSize    int               `yaml:"send_queue_size"`
	NotifyQueueSize  int               `yaml:"notify_queue_size"`
	ReadLimit        int64             `yaml:"read_limit"`
}

// ManagerConfig converts the section into a connection.ManagerConfig.
func (c ConnectionConfig) ManagerConfig() connection.ManagerConfig {
	var header http.Header
	if len(c.Headers) > 0 {
		header = make(http.Header, len(c.Headers))
		for k, v := range c.Headers {
			header.Set(k, v)
		}
	}

	return connection.ManagerConfig{
		Header:           header,
		Subprotocols:     append([]string(nil), c.Subprotocols...),
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		PingInterval:     c.PingInterval,
		PongTimeout:      c.PongTimeout,
		SendQueueSize:    c.SendQueueSize,
		NotifyQueueSize:  c.NotifyQueueSize,
		ReadLimit:        c.ReadLimit,
	}
}

// ServerConfig holds echo server settings.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	Path         string        `yaml:"path"`
	Subprotocols []string      `yaml:"subprotocols"` // Supported, in server preference order
	Echo         *bool         `yaml:"echo"`         // Write messages back (default true)
	ReadLimit    int64         `yaml:"read_limit"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// EchoEnabled reports whether received messages are written back.
func (s ServerConfig) EchoEnabled() bool {
	return s.Echo == nil || *s.Echo
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// JournalConfig holds the PostgreSQL event journal settings.
// The journal is off unless Enabled is set.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	Table         string        `yaml:"table"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
