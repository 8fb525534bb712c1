// Package main provides the entry point for echoserver, a demo WebSocket
// server that negotiates a subprotocol and writes every message back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wsclient/internal/config"
	"github.com/rickgao/wsclient/internal/echo"
	"github.com/rickgao/wsclient/internal/logging"
	"github.com/rickgao/wsclient/internal/metrics"
	"github.com/rickgao/wsclient/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	listen := flag.String("listen", "", "listen address, overrides server.listen")
	flag.Parse()

	if err := run(*configPath, *listen); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, listen string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting echoserver",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []echo.Option{echo.WithLogger(logger)}
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
		opts = append(opts, echo.WithMetrics(reg, ""))
	}

	server := echo.NewServer(cfg.Server, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	if reg != nil {
		addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		g.Go(func() error {
			return metrics.Serve(gctx, addr, cfg.Metrics.Path, reg, logger)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("echoserver failed", "error", err)
		return err
	}

	logger.Info("echoserver stopped")
	return nil
}
