// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/docket/lib/clock"
	"github.com/bureau-foundation/docket/lib/convert"
	"github.com/bureau-foundation/docket/lib/diskcache"
	"github.com/bureau-foundation/docket/lib/fetch"
	"github.com/bureau-foundation/docket/lib/parsecache"
	"github.com/bureau-foundation/docket/lib/resource"
)

// Config holds configuration for creating a Service.
type Config struct {
	// Registry maps filenames to converters. Required.
	Registry *convert.Registry

	// Parsed caches finished parse results. If nil, every parse runs
	// fresh.
	Parsed *parsecache.Cache

	// Pipeline uploads embedded resources and rewrites references. If
	// nil, a degraded pipeline is used: resources fail safe and their
	// references are stripped.
	Pipeline *resource.Pipeline

	// Fetcher retrieves remote resources. If nil, FetchResources
	// returns an error.
	Fetcher *fetch.Client

	// Disk is the shared cache store, used for stats and namespace
	// clearing. The parse and fetch caches hold their own references.
	Disk *diskcache.Cache

	// WorkDir is the parent for per-parse scratch directories. Empty
	// uses the system temp directory.
	WorkDir string

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// Clock abstracts time for tests. If nil, clock.Real() is used.
	Clock clock.Clock
}

// ServiceStats is one view over every cache and counter the service
// maintains.
type ServiceStats struct {
	Disk  diskcache.Stats  `cbor:"disk" json:"disk"`
	Parse parsecache.Stats `cbor:"parse" json:"parse"`
	Fetch fetch.Stats      `cbor:"fetch" json:"fetch"`

	// Formats lists the registered converter extensions.
	Formats []string `cbor:"formats,omitempty" json:"formats,omitempty"`
}

// Service parses documents and fetches remote resources, caching both.
// Safe for concurrent use.
type Service struct {
	registry *convert.Registry
	parsed   *parsecache.Cache
	pipeline *resource.Pipeline
	fetcher  *fetch.Client
	disk     *diskcache.Cache
	workDir  string
	logger   *slog.Logger
	clock    clock.Clock

	// ownsDisk is set by FromConfig: the disk cache was opened here
	// and Close releases it. Services built with New leave the disk
	// to its owner.
	ownsDisk bool
}

// New builds a Service from the given configuration.
func New(config Config) (*Service, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("ingest: Registry is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	pipeline := config.Pipeline
	if pipeline == nil {
		pipeline = resource.NewPipeline(resource.PipelineConfig{Logger: logger})
	}
	return &Service{
		registry: config.Registry,
		parsed:   config.Parsed,
		pipeline: pipeline,
		fetcher:  config.Fetcher,
		disk:     config.Disk,
		workDir:  config.WorkDir,
		logger:   logger,
		clock:    clk,
	}, nil
}

// ParseDocument converts one document to Markdown, relocating embedded
// resources through the upload pipeline. Results are cached by content,
// converter identity, and parser config; a hit returns the stored
// result without converting. All scratch files are removed before
// return on every path.
func (s *Service) ParseDocument(ctx context.Context, request *ParseRequest) (*ParseResult, error) {
	if request.Filename == "" {
		return nil, fmt.Errorf("ingest: filename is required")
	}
	if len(request.Data) == 0 {
		return nil, fmt.Errorf("ingest: document content is empty")
	}

	converter, err := s.registry.ForFilename(request.Filename)
	if err != nil {
		return nil, err
	}

	docType := docTypeFor(request.Filename)
	key := parsecache.Key(request.Data, converter.Name(), converter.Version(), request.ParserConfig)

	if s.parsed != nil && !request.NoCache {
		if cached, ok := s.parsed.Lookup(ctx, key, converter.Name()); ok {
			s.logger.Debug("parse cache hit",
				"filename", request.Filename,
				"parser", cached.Parser,
				"doc_type", cached.DocType,
			)
			return &ParseResult{
				Text:          cached.Text,
				Resources:     cached.Resources,
				Metadata:      cached.Metadata,
				DocType:       cached.DocType,
				ParserName:    cached.Parser,
				ParserVersion: converter.Version(),
				CacheHit:      true,
			}, nil
		}
	}

	// Converters that produce files (archives) extract under here;
	// removed before return regardless of outcome.
	scratch, err := os.MkdirTemp(s.workDir, "docket-parse-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	started := s.clock.Now()
	converted, err := converter.Convert(ctx, request.Data, request.Filename, convert.Options{WorkDir: scratch})
	if err != nil {
		return nil, err
	}

	text, descriptors := s.pipeline.Process(ctx, []byte(converted.Text), converted.Resources)

	result := &ParseResult{
		Text:          string(text),
		Resources:     descriptors,
		Metadata:      converted.Metadata,
		DocType:       docType,
		ParserName:    converter.Name(),
		ParserVersion: converter.Version(),
	}

	if s.parsed != nil {
		s.parsed.Store(ctx, key, &parsecache.Result{
			Text:          result.Text,
			Parser:        result.ParserName,
			DocType:       result.DocType,
			Metadata:      result.Metadata,
			Resources:     result.Resources,
			ContentLength: int64(len(request.Data)),
			ParsedAt:      s.clock.Now(),
		})
	}

	s.logger.Info("document parsed",
		"filename", request.Filename,
		"parser", result.ParserName,
		"doc_type", result.DocType,
		"resources", len(descriptors),
		"duration", s.clock.Now().Sub(started),
	)
	return result, nil
}

// FetchResources retrieves a batch of URLs through the fetch client.
// Per-URL outcomes land in the result; an error means the service has
// no fetch client at all.
func (s *Service) FetchResources(ctx context.Context, urls []string, opts fetch.Options) (*fetch.Result, error) {
	if s.fetcher == nil {
		return nil, fmt.Errorf("ingest: no fetch client configured")
	}
	return s.fetcher.FetchBatch(ctx, urls, opts), nil
}

// Stats reports the state of every cache and counter in one snapshot.
func (s *Service) Stats(ctx context.Context) ServiceStats {
	var stats ServiceStats
	if s.disk != nil {
		stats.Disk = s.disk.Stats(ctx)
	}
	if s.parsed != nil {
		stats.Parse = s.parsed.Stats()
	}
	if s.fetcher != nil {
		stats.Fetch = s.fetcher.Stats()
	}
	stats.Formats = s.registry.Formats()
	return stats
}

// ClearNamespace drops every cache entry in one namespace. Entries in
// other namespaces are untouched.
func (s *Service) ClearNamespace(ctx context.Context, namespace string) error {
	if namespace == "" {
		return fmt.Errorf("ingest: namespace is required")
	}
	if s.disk == nil {
		return fmt.Errorf("ingest: no disk cache configured")
	}
	s.disk.ClearNamespace(ctx, namespace)
	s.logger.Info("cache namespace cleared", "namespace", namespace)
	return nil
}

// Sweep removes expired and over-budget cache entries. A service
// without a disk cache sweeps nothing.
func (s *Service) Sweep(ctx context.Context) diskcache.SweepStats {
	if s.disk == nil {
		return diskcache.SweepStats{}
	}
	return s.disk.Sweep(ctx)
}

// Close releases resources the service owns. Only FromConfig-built
// services own their disk cache.
func (s *Service) Close() error {
	if s.ownsDisk && s.disk != nil {
		return s.disk.Close()
	}
	return nil
}

// docTypeFor is the filename extension without the dot, with compound
// tar extensions kept whole so .tar.gz attributes as "tar.gz" rather
// than "gz".
func docTypeFor(filename string) string {
	name := strings.ToLower(filepath.Base(filename))
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	stem := strings.TrimSuffix(name, ext)
	if filepath.Ext(stem) == ".tar" {
		return "tar" + ext
	}
	return strings.TrimPrefix(ext, ".")
}
