// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package parsecache

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/bureau-foundation/docket/lib/codec"
	"github.com/bureau-foundation/docket/lib/diskcache"
	"github.com/bureau-foundation/docket/lib/resource"
)

// namespace is the disk cache namespace holding parse results.
const namespace = "parsed"

// Result is a finished parse: the extracted text plus everything a
// caller needs to use it without re-parsing. Resources reference
// uploaded locations only; descriptors are immutable once stored and
// a hit returns exactly what was written.
type Result struct {
	Text          string                `cbor:"text"`
	Parser        string                `cbor:"parser"`
	DocType       string                `cbor:"doc_type"`
	Metadata      map[string]any        `cbor:"metadata,omitempty"`
	Resources     []resource.Descriptor `cbor:"resources,omitempty"`
	ContentLength int64                 `cbor:"content_length"`
	ParsedAt      time.Time             `cbor:"parsed_at"`
}

// Stats is a point-in-time snapshot of cache activity since the Cache
// was created.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Writes uint64 `json:"writes"`
	Errors uint64 `json:"errors"`

	// ContentBytes accumulates the ContentLength of every stored
	// result: the volume of original document content whose parses
	// the cache has absorbed.
	ContentBytes uint64 `json:"content_bytes"`

	// Hit counts broken down by parser name and by document type.
	HitsByParser  map[string]uint64 `json:"hits_by_parser,omitempty"`
	HitsByDocType map[string]uint64 `json:"hits_by_doc_type,omitempty"`
}

// Cache stores parse results in a disk cache namespace, CBOR-encoded.
type Cache struct {
	disk   *diskcache.Cache
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New wraps a disk cache in a parse result cache. A nil logger uses
// slog.Default().
func New(disk *diskcache.Cache, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		disk:   disk,
		logger: logger,
		stats: Stats{
			HitsByParser:  make(map[string]uint64),
			HitsByDocType: make(map[string]uint64),
		},
	}
}

// Lookup returns the cached result under key, or ok=false on a miss.
// parserName attributes the lookup in the stats; it does not affect
// what is found (the key already encodes the parser identity).
func (c *Cache) Lookup(ctx context.Context, key, parserName string) (*Result, bool) {
	encoded, ok := c.disk.Get(ctx, namespace, key)
	if !ok {
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	var result Result
	if err := codec.Unmarshal(encoded, &result); err != nil {
		// The entry is unusable; drop it so the next parse rewrites it.
		c.logger.Warn("parse cache entry undecodable", "key", key, "error", err)
		c.disk.Delete(ctx, namespace, key)
		c.mu.Lock()
		c.stats.Errors++
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.stats.HitsByParser[parserName]++
	c.stats.HitsByDocType[result.DocType]++
	c.mu.Unlock()
	return &result, true
}

// Store writes a parse result under key. Failures are counted and
// swallowed: a parse whose result cannot be cached is still a
// successful parse.
func (c *Cache) Store(ctx context.Context, key string, result *Result) {
	encoded, err := codec.Marshal(result)
	if err != nil {
		c.logger.Warn("parse result not encodable", "key", key, "parser", result.Parser, "error", err)
		c.mu.Lock()
		c.stats.Errors++
		c.mu.Unlock()
		return
	}

	if !c.disk.Set(ctx, namespace, key, encoded) {
		c.mu.Lock()
		c.stats.Errors++
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.stats.Writes++
	c.stats.ContentBytes += uint64(result.ContentLength)
	c.mu.Unlock()
}

// Clear removes every cached parse result. Other namespaces sharing
// the disk cache are untouched.
func (c *Cache) Clear(ctx context.Context) {
	c.disk.ClearNamespace(ctx, namespace)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.stats
	snapshot.HitsByParser = maps.Clone(c.stats.HitsByParser)
	snapshot.HitsByDocType = maps.Clone(c.stats.HitsByDocType)
	return snapshot
}
