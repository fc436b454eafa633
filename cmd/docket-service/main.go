// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/docket/lib/clock"
	"github.com/bureau-foundation/docket/lib/config"
	"github.com/bureau-foundation/docket/lib/ingest"
	"github.com/bureau-foundation/docket/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")

	// Service-specific flags.
	var (
		configPath string
		socketPath string
	)
	flag.StringVar(&configPath, "config", "", "configuration file (default: DOCKET_CONFIG, then the conventional path)")
	flag.StringVar(&socketPath, "socket", "", "listen socket path (overrides the configured one)")
	flag.Parse()

	if showVersion {
		fmt.Printf("docket-service %s\n", version.Info())
		return nil
	}

	logger := newLogger()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Service.Socket = socketPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := ingest.FromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer service.Close()

	server, err := ingest.NewServer(ingest.ServerConfig{
		Service:    service,
		SocketPath: cfg.Service.Socket,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	clk := clock.Real()

	// Sweep expired and over-budget entries at startup, then on the
	// configured cadence.
	if stats := service.Sweep(ctx); stats.Expired > 0 || stats.Evicted > 0 {
		logger.Info("startup sweep", "expired", stats.Expired, "evicted", stats.Evicted)
	}
	if interval := cfg.Service.SweepInterval(); interval > 0 {
		go func() {
			ticker := clk.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					stats := service.Sweep(ctx)
					if stats.Expired > 0 || stats.Evicted > 0 {
						logger.Info("cache sweep", "expired", stats.Expired, "evicted", stats.Evicted)
					}
				}
			}
		}()
	}

	// Start the socket listener in a goroutine.
	socketDone := make(chan error, 1)
	go func() {
		socketDone <- server.Serve(ctx)
	}()

	logger.Info("docket service running",
		"socket", cfg.Service.Socket,
		"cache_dir", cfg.Cache.Directory,
		"environment", cfg.Environment,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		// Wait for the socket listener to drain active connections.
		if err := <-socketDone; err != nil {
			logger.Error("socket listener error", "error", err)
		}
	case err := <-socketDone:
		// The listener exited on its own; that is a failure even when
		// it returned nil.
		if err != nil {
			return fmt.Errorf("socket listener: %w", err)
		}
		return fmt.Errorf("socket listener exited unexpectedly")
	}

	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogger creates the service's JSON logger on stderr and installs
// it as the slog default.
func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}
