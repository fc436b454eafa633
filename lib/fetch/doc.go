// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch retrieves remote resources for document ingestion.
//
// URLs are canonicalized before anything else: tracking query parameters
// (utm_* and friends) are stripped and the remaining parameters sorted, so
// that cosmetically different URLs for the same resource share one cache
// entry. Canonicalization is a pure function of the URL string.
//
// FetchBatch is cache-first: canonical URLs already present in the disk
// cache are served without any network call. The remainder is filtered
// against an extension allow-list (content the ingestion pipeline cannot
// parse is never downloaded), then dispatched in chunks to a downstream
// fetch service through a bounded worker pool with rate limiting and
// bounded retries. Successes are written back to the cache together with
// their canonical resource ID, which encodes the file type the server
// actually detected rather than whatever extension the URL carried.
//
// Per-URL failures carry one of three classes (unsupported_type,
// fetch_failed, timeout) and never abort sibling fetches in the same
// batch. FetchBatch itself never returns an error: every input URL maps
// to either a fetched resource or a classified failure.
package fetch
