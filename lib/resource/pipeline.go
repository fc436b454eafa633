// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// Uploader stores resource bytes. When nil the pipeline runs in
	// degraded mode: every resource fails safe and its references are
	// stripped from the text.
	Uploader Uploader

	// MaxBatch caps the number of resources one document may carry.
	// A document over the cap is not uploaded at all: the whole batch
	// fails safe without contacting the uploader. Zero means no cap.
	MaxBatch int

	// Timeout bounds the upload call. Zero means no deadline beyond
	// the caller's context.
	Timeout time.Duration

	Logger *slog.Logger
}

// Pipeline uploads a document's resources and rewrites its text to
// reference the uploaded locations.
type Pipeline struct {
	uploader Uploader
	maxBatch int
	timeout  time.Duration
	logger   *slog.Logger
}

// NewPipeline builds a Pipeline from the given configuration.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		uploader: cfg.Uploader,
		maxBatch: cfg.MaxBatch,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

// Process uploads all locals as one batch and returns the markdown
// with every reference to an uploaded resource rewritten to its
// uploaded location, plus one Descriptor per local in input order.
//
// Process never fails: upload problems surface as Descriptors with
// Status failed, and the text loses the image and link constructs
// that pointed at the failed files. A document with no resources
// passes through untouched.
func (p *Pipeline) Process(ctx context.Context, markdown []byte, locals []Local) ([]byte, []Descriptor) {
	if len(locals) == 0 {
		return markdown, nil
	}

	destinations := scanDestinations(markdown)
	matched := matchDestinations(destinations, locals)

	descriptors := make([]Descriptor, len(locals))
	for index := range locals {
		descriptors[index] = Descriptor{
			Filename:    locals[index].Filename,
			ContentType: locals[index].ContentType,
			Status:      StatusFailed,
		}
	}

	switch {
	case p.maxBatch > 0 && len(locals) > p.maxBatch:
		reason := fmt.Sprintf("document carries %d resources, limit is %d", len(locals), p.maxBatch)
		p.logger.Warn("resource batch rejected", "resources", len(locals), "limit", p.maxBatch)
		return p.finish(markdown, descriptors, matched, reason), descriptors
	case p.uploader == nil:
		return p.finish(markdown, descriptors, matched, "no uploader configured"), descriptors
	}

	// Read content and build the batch. Resources that cannot be read
	// fail individually and are not sent.
	var items []UploadItem
	sent := make([]int, 0, len(locals))
	for index := range locals {
		data, err := locals[index].content()
		if err != nil {
			descriptors[index].Error = err.Error()
			p.logger.Warn("resource unreadable", "filename", locals[index].Filename, "error", err)
			continue
		}
		contentType := locals[index].ContentType
		if contentType == "" {
			contentType = detectContentType(data)
		}
		descriptors[index].ContentType = contentType
		descriptors[index].Size = int64(len(data))
		items = append(items, UploadItem{
			Filename:    locals[index].Filename,
			ContentType: contentType,
			Data:        data,
		})
		sent = append(sent, index)
	}

	if len(items) > 0 {
		uploadCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			uploadCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}

		results, err := p.uploader.UploadBatch(uploadCtx, items)
		if err != nil {
			for _, index := range sent {
				descriptors[index].Error = fmt.Sprintf("upload batch: %v", err)
			}
			p.logger.Warn("resource upload batch failed", "resources", len(items), "error", err)
			return p.finish(markdown, descriptors, matched, ""), descriptors
		}

		byFilename := make(map[string]*UploadResult, len(results))
		for index := range results {
			byFilename[results[index].Filename] = &results[index]
		}
		for _, index := range sent {
			result := byFilename[locals[index].Filename]
			switch {
			case result == nil:
				descriptors[index].Error = "no result returned for file"
			case result.Error != "":
				descriptors[index].Error = result.Error
			default:
				descriptors[index].Status = StatusUploaded
				descriptors[index].ID = result.ID
				descriptors[index].URL = result.URL
			}
		}
	}

	output := p.finish(markdown, descriptors, matched, "")

	uploaded := 0
	for index := range descriptors {
		if descriptors[index].Status == StatusUploaded {
			uploaded++
		}
	}
	p.logger.Debug("document resources processed",
		"resources", len(locals),
		"uploaded", uploaded,
		"failed", len(locals)-uploaded)
	return output, descriptors
}

// finish applies the text rewrite implied by the descriptors: matched
// references of uploaded resources are redirected to their uploaded
// location, matched references of failed resources are stripped. When
// reason is non-empty it is recorded on every descriptor that has no
// more specific error yet.
func (p *Pipeline) finish(markdown []byte, descriptors []Descriptor, matched map[int][]string, reason string) []byte {
	text := string(markdown)
	for index := range descriptors {
		if reason != "" && descriptors[index].Status == StatusFailed && descriptors[index].Error == "" {
			descriptors[index].Error = reason
		}
		for _, destination := range matched[index] {
			if descriptors[index].Status == StatusUploaded {
				text = replaceDestination(text, destination, descriptors[index].Reference())
			} else {
				text = stripConstructs(text, destination)
			}
		}
	}
	return []byte(text)
}
