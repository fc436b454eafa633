// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/docket/lib/config"
	"github.com/bureau-foundation/docket/lib/fetch"
	"github.com/bureau-foundation/docket/lib/ingest"
)

// Ingestor is the subset of service operations the CLI drives. It is
// satisfied by the socket client and by the in-process adapter that
// --local builds.
type Ingestor interface {
	Parse(ctx context.Context, request *ingest.ParseRequest) (*ingest.ParseResult, error)
	Fetch(ctx context.Context, urls []string, opts fetch.Options) (*fetch.Result, error)
	Stats(ctx context.Context) (*ingest.ServiceStats, error)
	Clear(ctx context.Context, namespace string) (*ingest.ClearResponse, error)
}

// Connection manages how commands reach a docket service: over the
// Unix socket of a running docket-service (default), or by assembling
// the full service in-process with --local. Embed it in a command's
// parameter struct and call AddFlags during flag registration.
type Connection struct {
	SocketPath string
	Local      bool
	ConfigPath string
	Verbose    bool
}

// AddFlags registers the shared connection flags. The socket default
// comes from DOCKET_SOCKET when set, otherwise the configured default
// socket location.
func (c *Connection) AddFlags(flagSet *pflag.FlagSet) {
	socketDefault := config.Default().Service.Socket
	if envSocket := os.Getenv("DOCKET_SOCKET"); envSocket != "" {
		socketDefault = envSocket
	}

	flagSet.StringVar(&c.SocketPath, "socket", socketDefault, "docket service socket path")
	flagSet.BoolVar(&c.Local, "local", false, "run in-process instead of connecting to a service")
	flagSet.StringVar(&c.ConfigPath, "config", "", "configuration file for --local (default: DOCKET_CONFIG, then the conventional path)")
	flagSet.BoolVar(&c.Verbose, "verbose", false, "log informational detail to stderr")
}

// Connect produces an Ingestor per the connection flags. The returned
// cleanup function must be called when the command is done; for
// --local it closes the in-process service.
func (c *Connection) Connect(ctx context.Context, logger *slog.Logger) (Ingestor, func(), error) {
	if c.Local {
		cfg, err := c.loadConfig()
		if err != nil {
			return nil, nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
		if err := cfg.EnsurePaths(); err != nil {
			return nil, nil, err
		}

		service, err := ingest.FromConfig(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return localService{service}, func() { service.Close() }, nil
	}

	client, err := ingest.NewClient(ingest.ClientConfig{
		SocketPath: c.SocketPath,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, func() {}, nil
}

func (c *Connection) loadConfig() (*config.Config, error) {
	if c.ConfigPath != "" {
		return config.LoadFile(c.ConfigPath)
	}
	return config.Load()
}

// localService adapts an in-process [ingest.Service] to the client
// call shapes.
type localService struct {
	service *ingest.Service
}

func (l localService) Parse(ctx context.Context, request *ingest.ParseRequest) (*ingest.ParseResult, error) {
	return l.service.ParseDocument(ctx, request)
}

func (l localService) Fetch(ctx context.Context, urls []string, opts fetch.Options) (*fetch.Result, error) {
	return l.service.FetchResources(ctx, urls, opts)
}

func (l localService) Stats(ctx context.Context) (*ingest.ServiceStats, error) {
	stats := l.service.Stats(ctx)
	return &stats, nil
}

func (l localService) Clear(ctx context.Context, namespace string) (*ingest.ClearResponse, error) {
	if err := l.service.ClearNamespace(ctx, namespace); err != nil {
		return nil, err
	}
	return &ingest.ClearResponse{Namespace: namespace}, nil
}
