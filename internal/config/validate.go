package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateAddress(c.Connection.Address); err != nil {
		return fmt.Errorf("connection.address: %w", err)
	}
	if c.Connection.HandshakeTimeout < 0 {
		return errors.New("connection.handshake_timeout must be >= 0")
	}
	if c.Connection.PingInterval < 0 || c.Connection.PongTimeout < 0 {
		return errors.New("connection.ping_interval and connection.pong_timeout must be >= 0")
	}
	if c.Connection.PingInterval > 0 && c.Connection.PongTimeout > 0 &&
		c.Connection.PongTimeout <= c.Connection.PingInterval {
		return fmt.Errorf("connection.pong_timeout (%s) must exceed ping_interval (%s)",
			c.Connection.PongTimeout, c.Connection.PingInterval)
	}
	if c.Connection.SendQueueSize < 1 {
		return errors.New("connection.send_queue_size must be >= 1")
	}
	if c.Connection.NotifyQueueSize < 1 {
		return errors.New("connection.notify_queue_size must be >= 1")
	}
	if c.Connection.ReadLimit < 0 {
		return errors.New("connection.read_limit must be >= 0")
	}
	for _, p := range c.Connection.Subprotocols {
		if strings.TrimSpace(p) == "" || strings.ContainsAny(p, ", ") {
			return fmt.Errorf("connection.subprotocols: invalid token %q", p)
		}
	}

	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /, got %q", c.Server.Path)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if !identifierPattern.MatchString(c.Journal.Table) {
			return fmt.Errorf("journal.table %q is not a valid identifier", c.Journal.Table)
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func validateAddress(address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
