// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/docket/lib/archive"
	"github.com/bureau-foundation/docket/lib/blobstore"
	"github.com/bureau-foundation/docket/lib/config"
	"github.com/bureau-foundation/docket/lib/convert"
	"github.com/bureau-foundation/docket/lib/diskcache"
	"github.com/bureau-foundation/docket/lib/fetch"
	"github.com/bureau-foundation/docket/lib/parsecache"
	"github.com/bureau-foundation/docket/lib/resource"
)

// FromConfig assembles a Service and every component under it from
// loaded configuration: the disk cache, converter registry, blob
// store, upload pipeline, and fetch client. The context bounds
// startup-time calls such as bucket creation.
//
// The returned service owns the disk cache; Close releases it.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	key, err := cfg.Cache.Key()
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	disk, err := diskcache.Open(diskcache.Config{
		Directory:       cfg.Cache.Directory,
		NamespaceLimits: cfg.Cache.NamespaceLimitBytes(),
		TotalLimit:      cfg.Cache.TotalLimitBytes(),
		TTL:             cfg.Cache.TTL(),
		EncryptionKey:   key,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: opening disk cache: %w", err)
	}

	registry := convert.NewRegistry(convert.RegistryConfig{
		ArchiveLimits: archive.Limits{
			MaxContainerBytes: cfg.Archive.ContainerLimitBytes(),
			MaxMembers:        cfg.Archive.MaxMembers,
			MaxExtractedBytes: cfg.Archive.ExtractedLimitBytes(),
			Timeout:           cfg.Archive.Timeout(),
		},
		Logger: logger,
	})

	uploader, err := buildUploader(ctx, cfg, logger)
	if err != nil {
		disk.Close()
		return nil, err
	}

	pipeline := resource.NewPipeline(resource.PipelineConfig{
		Uploader: uploader,
		MaxBatch: cfg.Upload.MaxBatch,
		Timeout:  cfg.Upload.Timeout(),
		Logger:   logger,
	})

	fetcher, err := buildFetcher(cfg, disk, logger)
	if err != nil {
		disk.Close()
		return nil, err
	}

	// Scratch space lives next to the cache rather than in /tmp, which
	// is commonly tmpfs and too small for large archive extractions.
	workDir := filepath.Join(cfg.Cache.Directory, "work")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		disk.Close()
		return nil, fmt.Errorf("ingest: creating work directory: %w", err)
	}

	service, err := New(Config{
		Registry: registry,
		Parsed:   parsecache.New(disk, logger),
		Pipeline: pipeline,
		Fetcher:  fetcher,
		Disk:     disk,
		WorkDir:  workDir,
		Logger:   logger,
	})
	if err != nil {
		disk.Close()
		return nil, err
	}
	service.ownsDisk = true
	return service, nil
}

func buildUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (resource.Uploader, error) {
	if !cfg.Upload.Enabled {
		return nil, nil
	}

	switch cfg.Upload.Backend {
	case "local":
		store, err := blobstore.NewLocal(cfg.Upload.Local.Directory, logger)
		if err != nil {
			return nil, fmt.Errorf("ingest: opening local blob store: %w", err)
		}
		return store, nil

	case "s3":
		store, err := blobstore.NewS3(blobstore.S3Config{
			Endpoint:        cfg.Upload.S3.Endpoint,
			AccessKeyID:     cfg.Upload.S3.AccessKey,
			SecretAccessKey: cfg.Upload.S3.SecretKey,
			Bucket:          cfg.Upload.S3.Bucket,
			Secure:          cfg.Upload.S3.UseSSL,
			PublicBaseURL:   cfg.Upload.S3.PublicBaseURL,
			Concurrency:     cfg.Upload.S3.Concurrency,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("ingest: opening s3 blob store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ingest: ensuring bucket %s: %w", cfg.Upload.S3.Bucket, err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("ingest: unknown upload backend %q", cfg.Upload.Backend)
	}
}

func buildFetcher(cfg *config.Config, disk *diskcache.Cache, logger *slog.Logger) (*fetch.Client, error) {
	if cfg.Fetch.ServiceURL == "" {
		return nil, nil
	}

	downstream, err := fetch.NewHTTPDownstream(fetch.HTTPDownstreamConfig{
		BaseURL: cfg.Fetch.ServiceURL,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	rules := fetch.DefaultRules()
	if cfg.Fetch.RulesFile != "" {
		rules, err = fetch.LoadRules(cfg.Fetch.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("ingest: loading fetch rules: %w", err)
		}
	}

	return fetch.New(fetch.Config{
		Downstream:    downstream,
		Disk:          disk,
		Rules:         rules,
		Workers:       cfg.Fetch.Workers,
		ChunkSize:     cfg.Fetch.ChunkSize,
		MaxAttempts:   cfg.Fetch.MaxAttempts,
		RatePerSecond: cfg.Fetch.RatePerSecond,
		Timeout:       cfg.Fetch.Timeout(),
		Logger:        logger,
	}), nil
}
