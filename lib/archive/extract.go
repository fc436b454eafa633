// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Engine extracts containers under a fixed set of safety ceilings.
type Engine struct {
	limits Limits
	logger *slog.Logger
}

// NewEngine builds an extraction engine. A nil logger uses
// slog.Default().
func NewEngine(limits Limits, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{limits: limits, logger: logger}
}

// Extract unpacks data into a fresh directory created under
// parentDir (the system temp directory when parentDir is empty).
//
// On success the caller owns the returned Extraction.Root and must
// remove it. On any error no extraction directory is left behind.
func (e *Engine) Extract(ctx context.Context, filename string, data []byte, parentDir string) (*Extraction, error) {
	if e.limits.MaxContainerBytes > 0 && int64(len(data)) > e.limits.MaxContainerBytes {
		return nil, fmt.Errorf("%w: %d bytes, ceiling %d",
			ErrContainerTooLarge, len(data), e.limits.MaxContainerBytes)
	}

	format, err := DetectFormat(filename, data)
	if err != nil {
		return nil, err
	}

	if e.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.limits.Timeout)
		defer cancel()
	}

	// Index gate: entry count and declared total, checked before any
	// byte is written.
	if err := e.scanIndex(ctx, format, data); err != nil {
		return nil, err
	}

	root, err := os.MkdirTemp(parentDir, "extract-*")
	if err != nil {
		return nil, fmt.Errorf("creating extraction root: %w", err)
	}

	extraction, err := e.extractInto(ctx, format, data, root)
	if err != nil {
		os.RemoveAll(root)
		return nil, err
	}
	// Realized-tree gate: the index can lie about what actually
	// decompresses, so re-check the same ceilings against the tree.
	if err := e.verifyTree(root); err != nil {
		os.RemoveAll(root)
		return nil, err
	}

	extraction.Root = root
	extraction.Format = format
	e.logger.Debug("archive extracted",
		"filename", filename,
		"format", format,
		"members", len(extraction.Members),
		"rejected", len(extraction.Rejected),
		"bytes", extraction.TotalSize())
	return extraction, nil
}

// scanIndex reads the container's member index and enforces the entry
// count and declared size ceilings. For tar variants this streams the
// headers (bodies are skipped through the decompressor), aborting as
// soon as a ceiling is crossed so a bomb costs at most one ceiling's
// worth of work.
func (e *Engine) scanIndex(ctx context.Context, format Format, data []byte) error {
	switch format {
	case FormatZip:
		return e.scanZipIndex(data)
	default:
		return e.scanTarIndex(ctx, format, data)
	}
}

// extractInto unpacks data under root, which must be a fresh empty
// directory. Entries failing the path safety check are recorded in
// Rejected and skipped; the realized byte total is enforced while
// streaming.
func (e *Engine) extractInto(ctx context.Context, format Format, data []byte, root string) (*Extraction, error) {
	switch format {
	case FormatZip:
		return e.extractZip(ctx, data, root)
	default:
		return e.extractTar(ctx, format, data, root)
	}
}

// verifyTree re-walks the realized extraction and enforces the member
// count and extracted size ceilings against what is actually on disk.
func (e *Engine) verifyTree(root string) error {
	var count int
	var total int64
	err := filepath.WalkDir(root, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		count++
		total += info.Size()
		return nil
	})
	if err != nil {
		return fmt.Errorf("verifying extraction tree: %w", err)
	}

	if e.limits.MaxMembers > 0 && count > e.limits.MaxMembers {
		return fmt.Errorf("%w: tree holds %d files, ceiling %d",
			ErrTooManyMembers, count, e.limits.MaxMembers)
	}
	if e.limits.MaxExtractedBytes > 0 && total > e.limits.MaxExtractedBytes {
		return fmt.Errorf("%w: tree holds %d bytes, ceiling %d",
			ErrExtractedSizeExceeded, total, e.limits.MaxExtractedBytes)
	}
	return nil
}

// byteBudget returns the remaining extracted-byte allowance given
// what has been written so far.
func (e *Engine) byteBudget(written int64) int64 {
	if e.limits.MaxExtractedBytes <= 0 {
		return math.MaxInt64 - written
	}
	return e.limits.MaxExtractedBytes - written
}

// cleanEntryName normalizes an archive entry name to cleaned slash
// form. Backslashes are treated as separators first so a
// Windows-encoded traversal cannot slip through as a weird filename.
func cleanEntryName(name string) string {
	return path.Clean(strings.ReplaceAll(name, `\`, "/"))
}

// entryTarget resolves a cleaned entry name under root. ok is false
// for entries that would land outside the root: absolute paths and
// ".." traversal in any encoding.
func entryTarget(root, cleaned string) (string, bool) {
	if strings.HasPrefix(cleaned, "/") {
		return "", false
	}
	native := filepath.FromSlash(cleaned)
	if !filepath.IsLocal(native) {
		return "", false
	}
	return filepath.Join(root, native), true
}

// writeMember streams one entry to disk, capped at budget bytes.
// Returns the byte count actually written; exceeding the budget
// returns ErrExtractedSizeExceeded with the partial file left for the
// caller's whole-tree cleanup.
func writeMember(target string, src io.Reader, budget int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return 0, fmt.Errorf("creating member directory: %w", err)
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating member file: %w", err)
	}

	written, copyErr := io.Copy(out, io.LimitReader(src, budget+1))
	closeErr := out.Close()
	if copyErr != nil {
		return written, fmt.Errorf("%w: reading member stream: %v", ErrCorruptContainer, copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("closing member file: %w", closeErr)
	}
	if written > budget {
		return written, fmt.Errorf("%w: member stream exceeds remaining budget of %d bytes",
			ErrExtractedSizeExceeded, budget)
	}
	return written, nil
}
