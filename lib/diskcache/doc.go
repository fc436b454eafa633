// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package diskcache provides a size-bounded, TTL-expiring, namespaced
// key/value cache on local disk, backed by SQLite.
//
// Every cached artifact in docket — parse results, fetched resources,
// anything else a component wants to keep across runs — lives in one
// Cache instance, partitioned by namespace. The instance is constructed
// once and injected into its consumers; nothing in this package or its
// callers reaches for a process-global.
//
// # Contract
//
// The cache is an accelerator, never a source of truth. Get returns a
// miss for entries that are absent, expired, or unreadable. Set,
// Delete, and ClearNamespace are best-effort. I/O and decode errors
// are logged and counted but never propagated: a broken cache degrades
// the system to uncached speed, it does not break parsing. Callers can
// watch Stats().IOErrors to notice a persistently unhealthy cache.
//
// # Expiry and eviction
//
// Entries expire TTL after they are written; expired entries are
// absent from Get immediately, with physical removal deferred to reads
// and the periodic Sweep. Each namespace has a byte budget, and the
// cache as a whole may have one; when a write pushes a budget over its
// limit, least-recently-used entries are deleted until the budget
// holds. Eviction removes whole rows — one key's eviction can never
// corrupt another key's value.
//
// # Value encoding
//
// Values are compressed when profitable (zstd for high-ratio data, lz4
// for a modest ratio, raw otherwise; the algorithm is chosen by a
// probe) and optionally sealed with XChaCha20-Poly1305 when the cache
// is opened with an encryption key. Sealed values are bound to their
// namespace and key, so swapping rows in the database file produces an
// authentication failure rather than a wrong answer.
package diskcache
