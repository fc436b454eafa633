// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the docket service — a document ingestion
// daemon that parses files to Markdown, extracts and uploads embedded
// resources, and fetches remote URLs, caching everything on disk.
//
// The service listens on a Unix socket. Each connection carries one
// request and one response as length-prefixed CBOR messages with an
// "action" field (parse, fetch, stats, clear); the protocol and its
// handlers live in lib/ingest.
//
// Configuration comes from a YAML file resolved by --config, the
// DOCKET_CONFIG environment variable, or the conventional path (see
// lib/config). A sweep loop removes expired and over-budget cache
// entries on the configured cadence.
package main
