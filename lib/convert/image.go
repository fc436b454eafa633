// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bureau-foundation/docket/lib/resource"
)

// ImageConverter emits a one-line markdown reference to the image and
// hands the image itself to the pipeline as a local resource, so the
// normal upload-and-rewrite path relocates it.
type ImageConverter struct{}

func (c *ImageConverter) Name() string    { return "image" }
func (c *ImageConverter) Version() string { return "1.0" }

func (c *ImageConverter) Convert(ctx context.Context, data []byte, filename string, opts Options) (*Result, error) {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	contentType := mimetype.Detect(data)

	metadata := map[string]any{
		"content_type": contentType.String(),
	}
	// Dimensions when the stdlib can read the header; formats it
	// cannot (webp, bmp, tiff) just go without.
	if config, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		metadata["width"] = config.Width
		metadata["height"] = config.Height
	}

	return &Result{
		Text: fmt.Sprintf("![%s](%s)\n", stem, base),
		Resources: []resource.Local{{
			Filename:    base,
			Data:        data,
			ContentType: contentType.String(),
		}},
		Metadata: metadata,
	}, nil
}
