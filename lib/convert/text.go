// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package convert

import (
	"bytes"
	"context"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextConverter passes UTF-8 text and markdown through with light
// normalization: the byte order mark is stripped, CRLF and bare CR
// become LF, and invalid UTF-8 sequences are replaced with U+FFFD.
type TextConverter struct{}

func (c *TextConverter) Name() string    { return "text" }
func (c *TextConverter) Version() string { return "1.0" }

func (c *TextConverter) Convert(ctx context.Context, data []byte, filename string, opts Options) (*Result, error) {
	normalized := bytes.TrimPrefix(data, utf8BOM)
	normalized = bytes.ReplaceAll(normalized, []byte("\r\n"), []byte("\n"))
	normalized = bytes.ReplaceAll(normalized, []byte("\r"), []byte("\n"))
	normalized = bytes.ToValidUTF8(normalized, []byte("�"))

	return &Result{
		Text: string(normalized),
		Metadata: map[string]any{
			"line_count": bytes.Count(normalized, []byte("\n")) + 1,
		},
	}, nil
}
