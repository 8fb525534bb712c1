package command

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/rickgao/wsclient/internal/config"
	"github.com/rickgao/wsclient/internal/logging"
	"github.com/rickgao/wsclient/internal/version"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    version.Name,
		Usage:   "WebSocket client with an interactive connect/disconnect/send session",
		Version: version.String(),
		Flags:   globalFlags(),
		Action:  replAction,
		Commands: []*cli.Command{
			SendCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to YAML config file (defaults apply when omitted)",
			EnvVars: []string{"WSCLIENT_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Usage:   "WebSocket address (e.g., ws://localhost:8090/ws)",
			EnvVars: []string{"WSCLIENT_ADDRESS"},
		},
		&cli.StringSliceFlag{
			Name:    "protocol",
			Aliases: []string{"p"},
			Usage:   "Subprotocol to request, repeatable, in preference order",
		},
		&cli.StringSliceFlag{
			Name:    "header",
			Aliases: []string{"H"},
			Usage:   "Extra handshake header as \"Name: value\", repeatable",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level: debug, info, warn, error",
			EnvVars: []string{"WSCLIENT_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address (e.g., :9090)",
		},
	}
}

// GlobalFlags holds the parsed global flags.
type GlobalFlags struct {
	Config      string
	Address     string
	Protocols   []string
	Headers     []string
	LogLevel    string
	MetricsAddr string
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Config:      c.String("config"),
		Address:     c.String("address"),
		Protocols:   c.StringSlice("protocol"),
		Headers:     c.StringSlice("header"),
		LogLevel:    c.String("log-level"),
		MetricsAddr: c.String("metrics-addr"),
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(flags *GlobalFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.Config != "" {
		var err error
		if cfg, err = config.LoadWithDefaults(flags.Config); err != nil {
			return nil, err
		}
	}

	if flags.Address != "" {
		cfg.Connection.Address = flags.Address
	}
	if len(flags.Protocols) > 0 {
		cfg.Connection.Subprotocols = flags.Protocols
	}
	for _, h := range flags.Headers {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q (want \"Name: value\")", h)
		}
		if cfg.Connection.Headers == nil {
			cfg.Connection.Headers = make(map[string]string)
		}
		cfg.Connection.Headers[name] = strings.TrimSpace(value)
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// setup parses flags, loads config and builds the logger. Logs go to the
// app's error writer so they stay out of the session output.
func setup(c *cli.Context) (*GlobalFlags, *config.Config, *slog.Logger, error) {
	flags := ParseGlobalFlags(c)

	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: c.App.ErrWriter,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return flags, cfg, logger, nil
}
