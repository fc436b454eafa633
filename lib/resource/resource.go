// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"context"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// Local is a file discovered during document parsing that belongs to
// the document: an embedded image, an archive member, a sidecar file.
// It exists on the parser's local disk (or in memory) and must be
// uploaded before the parse result can outlive the parse.
type Local struct {
	// Filename is the name the document uses to refer to this file,
	// such as "figure1.png". It is the join key between markdown
	// references and upload results, so it must be unique within one
	// document.
	Filename string

	// Path is the absolute on-disk location. When Data is nil the
	// pipeline reads the content from here.
	Path string

	// Data holds the file content when the producer already has it in
	// memory. Takes precedence over Path.
	Data []byte

	// ContentType is the MIME type when known. Sniffed from the
	// content when empty.
	ContentType string
}

// content returns the file bytes, reading from Path if necessary.
func (l *Local) content() ([]byte, error) {
	if l.Data != nil {
		return l.Data, nil
	}
	if l.Path == "" {
		return nil, fmt.Errorf("resource %q has neither data nor path", l.Filename)
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("reading resource %q: %w", l.Filename, err)
	}
	return data, nil
}

// UploadStatus records the outcome of one file's upload.
type UploadStatus string

const (
	StatusUploaded UploadStatus = "uploaded"
	StatusFailed   UploadStatus = "failed"
)

// Descriptor is the durable record of one document resource after the
// upload pipeline has run. Descriptors are what callers persist (for
// example in the parse result cache): they reference uploaded
// locations, never parser-local paths, so they stay valid after the
// parse's working directory is gone.
type Descriptor struct {
	Filename    string       `cbor:"filename" json:"filename"`
	ID          string       `cbor:"id,omitempty" json:"id,omitempty"`
	URL         string       `cbor:"url,omitempty" json:"url,omitempty"`
	ContentType string       `cbor:"content_type,omitempty" json:"content_type,omitempty"`
	Size        int64        `cbor:"size" json:"size"`
	Status      UploadStatus `cbor:"status" json:"status"`
	Error       string       `cbor:"error,omitempty" json:"error,omitempty"`
}

// Reference returns the string that document text should use to refer
// to this resource after upload: the URL when the backend issued one,
// otherwise the storage ID.
func (d *Descriptor) Reference() string {
	if d.URL != "" {
		return d.URL
	}
	return d.ID
}

// UploadItem is one file in an upload batch.
type UploadItem struct {
	Filename    string `cbor:"filename"`
	ContentType string `cbor:"content_type,omitempty"`
	Data        []byte `cbor:"data"`
}

// UploadResult is the backend's verdict on one UploadItem. Filename
// correlates the result with its item; a result with a non-empty
// Error means the file was not stored.
type UploadResult struct {
	Filename string `cbor:"filename"`
	ID       string `cbor:"id,omitempty"`
	URL      string `cbor:"url,omitempty"`
	Error    string `cbor:"error,omitempty"`
}

// Uploader stores document resources. Implementations decide where
// the bytes go (local content-addressed store, S3 bucket, remote
// service); the pipeline only cares about the per-file outcomes.
//
// UploadBatch submits all files of one document in a single call.
// A non-nil error means the batch as a whole did not happen (network
// down, backend rejected the request) and every file should be
// treated as failed. Per-file problems are reported in the results,
// not the error.
type Uploader interface {
	UploadBatch(ctx context.Context, items []UploadItem) ([]UploadResult, error)
}

// detectContentType sniffs the MIME type from content.
func detectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}
