// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore stores document resource bytes under stable
// content-addressed identifiers.
//
// A resource ID has the form "res-" + 12 hex characters of the
// content's BLAKE3 hash + the file extension, so the same bytes
// always land under the same ID and a re-upload is a no-op. Two
// backends implement the same batch upload contract: Local writes
// sharded files under a root directory, S3 puts objects into a bucket
// through the MinIO client. Both satisfy resource.Uploader, so the
// upload pipeline does not care which one it talks to.
package blobstore
