// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package convert

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/bureau-foundation/docket/lib/archive"
	"github.com/bureau-foundation/docket/lib/resource"
)

// ArchiveConverter runs the safety-validating extraction engine and
// renders the extracted tree as markdown: one link per member, by
// relative path, so the upload pipeline relocates every member and
// rewrites the links to durable references.
type ArchiveConverter struct {
	engine *archive.Engine
}

// NewArchiveConverter builds the converter around an extraction engine
// with the given ceilings.
func NewArchiveConverter(limits archive.Limits, logger *slog.Logger) *ArchiveConverter {
	return &ArchiveConverter{engine: archive.NewEngine(limits, logger)}
}

func (c *ArchiveConverter) Name() string    { return "archive" }
func (c *ArchiveConverter) Version() string { return "1.0" }

func (c *ArchiveConverter) Convert(ctx context.Context, data []byte, filename string, opts Options) (*Result, error) {
	extraction, err := c.engine.Extract(ctx, filename, data, opts.WorkDir)
	if err != nil {
		return nil, &ConvertError{
			Op:     "archive",
			Format: strings.ToLower(filepath.Ext(filename)),
			Err:    err,
		}
	}

	total := extraction.TotalSize()

	var text strings.Builder
	fmt.Fprintf(&text, "# %s\n\n", filepath.Base(filename))
	fmt.Fprintf(&text, "%d files, %s extracted.\n\n",
		len(extraction.Members), humanize.Bytes(uint64(total)))
	for _, member := range extraction.Members {
		fmt.Fprintf(&text, "- [%s](%s) (%s)\n",
			member.RelativePath,
			linkDestination(member.RelativePath),
			humanize.Bytes(uint64(member.Size)))
	}
	if len(extraction.Rejected) > 0 {
		fmt.Fprintf(&text, "\n%d entries rejected during extraction.\n", len(extraction.Rejected))
	}

	locals := make([]resource.Local, len(extraction.Members))
	for index, member := range extraction.Members {
		locals[index] = resource.Local{
			Filename: member.RelativePath,
			Path:     member.AbsolutePath,
		}
	}

	return &Result{
		Text:      text.String(),
		Resources: locals,
		Metadata: map[string]any{
			"format":         string(extraction.Format),
			"member_count":   len(extraction.Members),
			"total_bytes":    total,
			"rejected_count": len(extraction.Rejected),
		},
	}, nil
}

// linkDestination renders a member path as a markdown destination.
// Paths with spaces need the angle-bracket form to stay parseable.
func linkDestination(path string) string {
	if strings.ContainsAny(path, " ") {
		return "<" + path + ">"
	}
	return path
}
