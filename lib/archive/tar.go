// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// tarStream opens the possibly compressed tar stream inside data. The
// returned release function frees decompressor state.
func tarStream(format Format, data []byte) (*tar.Reader, func(), error) {
	raw := bytes.NewReader(data)
	switch format {
	case FormatTar:
		return tar.NewReader(raw), func() {}, nil
	case FormatTarGz:
		decompressor, err := gzip.NewReader(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: opening gzip stream: %v", ErrCorruptContainer, err)
		}
		return tar.NewReader(decompressor), func() { decompressor.Close() }, nil
	case FormatTarBz2:
		return tar.NewReader(bzip2.NewReader(raw)), func() {}, nil
	case FormatTarZst:
		decompressor, err := zstd.NewReader(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: opening zstd stream: %v", ErrCorruptContainer, err)
		}
		return tar.NewReader(decompressor), decompressor.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// scanTarIndex streams the tar headers and enforces the entry count
// and declared size ceilings. Bodies are skipped through the
// decompressor, and the scan aborts at the first violated ceiling, so
// a bomb costs at most one ceiling's worth of decompression before
// rejection.
func (e *Engine) scanTarIndex(ctx context.Context, format Format, data []byte) error {
	reader, release, err := tarStream(format, data)
	if err != nil {
		return err
	}
	defer release()

	var members int
	var declared int64
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("index scan interrupted: %w", err)
		}
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: reading tar index: %v", ErrCorruptContainer, err)
		}

		members++
		if e.limits.MaxMembers > 0 && members > e.limits.MaxMembers {
			return fmt.Errorf("%w: index declares more than %d entries",
				ErrTooManyMembers, e.limits.MaxMembers)
		}
		if header.Typeflag == tar.TypeReg {
			declared += header.Size
			if e.limits.MaxExtractedBytes > 0 && (declared > e.limits.MaxExtractedBytes || declared < 0) {
				return fmt.Errorf("%w: index declares more than %d bytes",
					ErrExtractedSizeExceeded, e.limits.MaxExtractedBytes)
			}
		}
	}
}

func (e *Engine) extractTar(ctx context.Context, format Format, data []byte, root string) (*Extraction, error) {
	reader, release, err := tarStream(format, data)
	if err != nil {
		return nil, err
	}
	defer release()

	extraction := &Extraction{}
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extraction interrupted: %w", err)
		}
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return extraction, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading tar entry: %v", ErrCorruptContainer, err)
		}

		cleaned := cleanEntryName(header.Name)
		if cleaned == "." {
			continue
		}
		target, ok := entryTarget(root, cleaned)
		if !ok {
			extraction.Rejected = append(extraction.Rejected, header.Name)
			e.logger.Warn("archive entry rejected",
				"entry", header.Name, "reason", "path escapes extraction root")
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o700); err != nil {
				return nil, fmt.Errorf("creating directory entry: %w", err)
			}
		case tar.TypeReg:
			size, err := writeMember(target, reader, e.byteBudget(written))
			if err != nil {
				return nil, err
			}
			written += size
			extraction.Members = append(extraction.Members, Member{
				RelativePath: cleaned,
				AbsolutePath: target,
				Size:         size,
			})
		default:
			// Symlinks, hard links, devices: never materialized.
			e.logger.Debug("archive entry skipped",
				"entry", header.Name, "type", fmt.Sprintf("%c", header.Typeflag))
		}
	}
}
