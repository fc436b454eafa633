// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resource handles the attachments of a parsed document: the
// images, archives, and other files that a document references or
// carries alongside its text.
//
// The core type is the Pipeline, which takes a parsed markdown body
// plus the set of local files discovered during parsing, submits the
// files to an Uploader as a single batch, and rewrites the markdown so
// that every reference to a local file points at its uploaded
// location instead. Files whose upload failed have their image and
// link constructs removed from the text entirely, so the output never
// references a file that does not exist anywhere.
//
// Upload failures never fail the document. A parse with a broken
// uploader still returns usable text; the failed files are reported in
// the returned descriptors with Status "failed" and the reason in
// Error.
package resource
