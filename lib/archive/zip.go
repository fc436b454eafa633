// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
)

// scanZipIndex reads the central directory and enforces the entry
// count and declared uncompressed total ceilings without touching any
// member data.
func (e *Engine) scanZipIndex(data []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: reading zip index: %v", ErrCorruptContainer, err)
	}

	if e.limits.MaxMembers > 0 && len(reader.File) > e.limits.MaxMembers {
		return fmt.Errorf("%w: index declares %d entries, ceiling %d",
			ErrTooManyMembers, len(reader.File), e.limits.MaxMembers)
	}

	if e.limits.MaxExtractedBytes > 0 {
		ceiling := uint64(e.limits.MaxExtractedBytes)
		var declared uint64
		for _, file := range reader.File {
			declared += file.UncompressedSize64
			// The wrap check catches crafted size fields that overflow
			// the running sum past the ceiling.
			if file.UncompressedSize64 > ceiling || declared > ceiling || declared < file.UncompressedSize64 {
				return fmt.Errorf("%w: index declares more than %d bytes",
					ErrExtractedSizeExceeded, e.limits.MaxExtractedBytes)
			}
		}
	}
	return nil
}

func (e *Engine) extractZip(ctx context.Context, data []byte, root string) (*Extraction, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: reading zip index: %v", ErrCorruptContainer, err)
	}

	extraction := &Extraction{}
	var written int64
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extraction interrupted: %w", err)
		}

		cleaned := cleanEntryName(file.Name)
		if cleaned == "." {
			continue
		}
		target, ok := entryTarget(root, cleaned)
		if !ok {
			extraction.Rejected = append(extraction.Rejected, file.Name)
			e.logger.Warn("archive entry rejected",
				"entry", file.Name, "reason", "path escapes extraction root")
			continue
		}

		info := file.FileInfo()
		switch {
		case info.IsDir():
			if err := os.MkdirAll(target, 0o700); err != nil {
				return nil, fmt.Errorf("creating directory entry: %w", err)
			}
		case !info.Mode().IsRegular():
			e.logger.Debug("archive entry skipped",
				"entry", file.Name, "mode", info.Mode().String())
		default:
			src, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("%w: opening member %s: %v", ErrCorruptContainer, file.Name, err)
			}
			size, err := writeMember(target, src, e.byteBudget(written))
			src.Close()
			if err != nil {
				return nil, err
			}
			written += size
			extraction.Members = append(extraction.Members, Member{
				RelativePath: cleaned,
				AbsolutePath: target,
				Size:         size,
			})
		}
	}
	return extraction, nil
}
