// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package convert turns raw document bytes into markdown text plus the
// embedded resources the upload pipeline relocates.
//
// A Converter is an opaque function from (bytes, filename) to a Result:
// normalized text, zero or more local resource files, and lightweight
// metadata. Converters are looked up by filename extension through a
// Registry built at construction; heavyweight formats (PDF, office
// documents, OCR) are expected to be registered by the consumer, while
// the built-ins cover plain text, images, and archives.
//
// Converters never talk to storage. The ingest layer owns temp
// directories, the parse cache, and the upload pipeline; a converter
// only reports where its extracted files landed.
package convert
