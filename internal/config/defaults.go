package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddress          = "ws://localhost:8090/ws"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPongTimeout      = 60 * time.Second
	DefaultSendQueueSize    = 256
	DefaultNotifyQueueSize  = 1024
	DefaultReadLimit        = 1 << 20
	DefaultListen           = ":8090"
	DefaultPath             = "/ws"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultJournalTable     = "ws_journal"
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultBufferSize       = 4096
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
)

// DefaultServerSubprotocols are offered by the echo server when none are configured.
var DefaultServerSubprotocols = []string{"cursor", "chat", "test"}

func (c *Config) applyDefaults() {
	// Connection defaults
	if c.Connection.Address == "" {
		c.Connection.Address = DefaultAddress
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PongTimeout == 0 {
		c.Connection.PongTimeout = DefaultPongTimeout
	}
	if c.Connection.SendQueueSize == 0 {
		c.Connection.SendQueueSize = DefaultSendQueueSize
	}
	if c.Connection.NotifyQueueSize == 0 {
		c.Connection.NotifyQueueSize = DefaultNotifyQueueSize
	}
	if c.Connection.ReadLimit == 0 {
		c.Connection.ReadLimit = DefaultReadLimit
	}

	// Server defaults
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}
	if len(c.Server.Subprotocols) == 0 {
		c.Server.Subprotocols = append([]string(nil), DefaultServerSubprotocols...)
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.Table == "" {
		c.Journal.Table = DefaultJournalTable
	}
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
