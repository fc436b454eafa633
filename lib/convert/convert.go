// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bureau-foundation/docket/lib/archive"
	"github.com/bureau-foundation/docket/lib/resource"
)

// ErrUnknownFormat reports a filename whose extension no registered
// converter claims.
var ErrUnknownFormat = errors.New("convert: unknown format")

// Result is a converter's output: markdown text, the local files the
// document embedded (for the upload pipeline to relocate), and
// converter-specific metadata.
type Result struct {
	Text      string
	Resources []resource.Local
	Metadata  map[string]any
}

// Options carries per-call conversion parameters.
type Options struct {
	// WorkDir is where converters may materialize files (archive
	// extraction). The caller owns its lifecycle; converters never
	// delete it. Empty means the system temp directory.
	WorkDir string
}

// Converter transforms one document format into a Result. Name and
// Version identify the converter for parse cache keys: bumping Version
// invalidates previously cached results of that converter.
type Converter interface {
	Convert(ctx context.Context, data []byte, filename string, opts Options) (*Result, error)
	Name() string
	Version() string
}

// ConvertError wraps a conversion failure with the converter and format
// involved. The wrapped cause stays reachable for errors.Is, so archive
// safety violations keep their sentinel identity through convert.
type ConvertError struct {
	Op     string
	Format string
	Err    error
}

func (e *ConvertError) Error() string {
	return fmt.Sprintf("convert: %s %s: %v", e.Op, e.Format, e.Err)
}

func (e *ConvertError) Unwrap() error { return e.Err }

// RegistryConfig holds construction parameters for a Registry.
type RegistryConfig struct {
	// ArchiveLimits bounds the built-in archive converter's extraction
	// engine. Zero fields are unenforced.
	ArchiveLimits archive.Limits
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Registry maps filename extensions to converters. The built-ins are
// registered at construction; Register adds or overrides entries.
// Lookup and registration are not synchronized: register everything
// before handing the registry to concurrent callers.
type Registry struct {
	byExtension map[string]Converter
	logger      *slog.Logger
}

// NewRegistry builds a registry with the built-in text, image, and
// archive converters registered.
func NewRegistry(config RegistryConfig) *Registry {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := &Registry{
		byExtension: make(map[string]Converter),
		logger:      logger,
	}
	registry.Register(&TextConverter{},
		".txt", ".md", ".markdown", ".rst")
	registry.Register(&ImageConverter{},
		".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff")
	registry.Register(NewArchiveConverter(config.ArchiveLimits, logger),
		".zip", ".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz2", ".tar.zst", ".tzst")
	return registry
}

// Register claims the given extensions for a converter, replacing any
// previous claim. Extensions are matched case-insensitively and must
// include the leading dot; multi-part extensions like ".tar.gz" are
// matched before their shorter tails.
func (r *Registry) Register(converter Converter, extensions ...string) {
	for _, extension := range extensions {
		r.byExtension[strings.ToLower(extension)] = converter
	}
}

// ForFilename returns the converter claiming the filename's extension.
// The longest matching registered suffix wins, so "notes.tar.gz" goes
// to the archive converter even if ".gz" were claimed elsewhere.
func (r *Registry) ForFilename(name string) (Converter, error) {
	lower := strings.ToLower(name)

	best := ""
	for extension := range r.byExtension {
		if strings.HasSuffix(lower, extension) && len(extension) > len(best) {
			best = extension
		}
	}
	if best == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return r.byExtension[best], nil
}

// Formats returns the registered extensions, sorted.
func (r *Registry) Formats() []string {
	formats := make([]string, 0, len(r.byExtension))
	for extension := range r.byExtension {
		formats = append(formats, extension)
	}
	sort.Strings(formats)
	return formats
}
