// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package diskcache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/docket/lib/clock"
	"github.com/bureau-foundation/docket/lib/sqlitepool"
)

// schema is the cache table layout. One row per entry, keyed by the
// (namespace, key) pair. Sizes are tracked both logically (the bytes
// the caller stored) and physically (the bytes on disk after
// compression and sealing); budgets are enforced on physical size.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
	namespace   TEXT    NOT NULL,
	key         TEXT    NOT NULL,
	value       BLOB    NOT NULL,
	size        INTEGER NOT NULL,
	stored_size INTEGER NOT NULL,
	compression INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL,
	last_access INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS idx_entries_access
	ON entries (last_access);
CREATE INDEX IF NOT EXISTS idx_entries_namespace_access
	ON entries (namespace, last_access);
CREATE INDEX IF NOT EXISTS idx_entries_namespace_size
	ON entries (namespace, stored_size);
CREATE INDEX IF NOT EXISTS idx_entries_expiry
	ON entries (expires_at) WHERE expires_at != 0;
`

// Config holds the parameters for opening a cache. Directory is
// required; everything else has usable defaults.
type Config struct {
	// Directory is where the cache database lives. Created if it does
	// not exist.
	Directory string

	// NamespaceLimits maps namespace names to their byte budgets.
	// Namespaces not listed use DefaultNamespaceLimit.
	NamespaceLimits map[string]int64

	// DefaultNamespaceLimit is the byte budget for namespaces without
	// an explicit limit. Zero means unlimited.
	DefaultNamespaceLimit int64

	// TotalLimit is the byte budget for the cache as a whole, across
	// all namespaces. Zero means unlimited.
	TotalLimit int64

	// TTL is how long entries live after they are written. Zero means
	// entries never expire.
	TTL time.Duration

	// NamespaceTTL overrides TTL for specific namespaces.
	NamespaceTTL map[string]time.Duration

	// EncryptionKey, when non-empty, must be exactly 32 bytes. Values
	// are then sealed with XChaCha20-Poly1305 before they hit disk.
	EncryptionKey []byte

	// PoolSize is the SQLite connection pool size. Defaults to 4.
	PoolSize int

	// Logger receives degradation warnings and operational messages.
	// If nil, slog.Default() is used.
	Logger *slog.Logger

	// Clock provides the current time for TTL decisions. If nil, the
	// real clock is used.
	Clock clock.Clock
}

// Stats describes the cache's current contents.
type Stats struct {
	// Entries is the number of live rows across all namespaces.
	Entries int64 `json:"entries"`

	// TotalBytes is the logical size of all values (before
	// compression and sealing).
	TotalBytes int64 `json:"total_bytes"`

	// StoredBytes is the physical size of all values on disk.
	StoredBytes int64 `json:"stored_bytes"`

	// Namespaces breaks the totals down per namespace.
	Namespaces map[string]NamespaceStats `json:"namespaces,omitempty"`

	// IOErrors counts operations that degraded to a miss or no-op
	// because of an I/O or decode failure, since the cache was opened.
	IOErrors uint64 `json:"io_errors"`
}

// NamespaceStats describes one namespace's contents.
type NamespaceStats struct {
	Entries     int64 `json:"entries"`
	TotalBytes  int64 `json:"total_bytes"`
	StoredBytes int64 `json:"stored_bytes"`
}

// SweepStats reports what a Sweep pass removed.
type SweepStats struct {
	// Expired is the number of rows removed because their TTL had
	// passed.
	Expired int64

	// Evicted is the number of rows removed to bring namespace or
	// global budgets back under their limits.
	Evicted int64
}

// Cache is a namespaced disk cache. Safe for concurrent use; SQLite
// serializes writes, so there is a single writer per key at any
// moment.
type Cache struct {
	pool     *sqlitepool.Pool
	sealer   *sealer // nil when encryption is off
	config   Config
	logger   *slog.Logger
	clock    clock.Clock
	ioErrors atomic.Uint64
}

// Open creates the cache directory if needed and opens the backing
// database. The caller must Close the cache when done.
func Open(cfg Config) (*Cache, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("diskcache: Directory is required")
	}
	if err := os.MkdirAll(cfg.Directory, 0o700); err != nil {
		return nil, fmt.Errorf("diskcache: creating %s: %w", cfg.Directory, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}

	var valueSealer *sealer
	if len(cfg.EncryptionKey) > 0 {
		var err error
		valueSealer, err = newSealer(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("diskcache: %w", err)
		}
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(cfg.Directory, "cache.db"),
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			// Incremental auto-vacuum keeps the file from growing
			// without bound under constant eviction churn. Must be
			// set before the first table is created.
			if err := sqlitex.ExecuteTransient(conn, "PRAGMA auto_vacuum=INCREMENTAL", nil); err != nil {
				return err
			}
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("diskcache: %w", err)
	}

	return &Cache{
		pool:   pool,
		sealer: valueSealer,
		config: cfg,
		logger: logger,
		clock:  timeSource,
	}, nil
}

// Close closes the backing database.
func (c *Cache) Close() error {
	return c.pool.Close()
}

// Get returns the value stored under (namespace, key), or ok=false if
// the entry is absent, expired, or unreadable. A successful read
// refreshes the entry's recency for eviction ordering.
func (c *Cache) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		c.degrade("get", namespace, key, err)
		return nil, false
	}
	defer c.pool.Put(conn)

	var (
		found     bool
		stored    []byte
		size      int64
		tag       int64
		expiresAt int64
	)
	err = sqlitex.Execute(conn,
		`SELECT value, size, compression, expires_at FROM entries WHERE namespace = ? AND key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{namespace, key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				stored = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, stored)
				size = stmt.ColumnInt64(1)
				tag = stmt.ColumnInt64(2)
				expiresAt = stmt.ColumnInt64(3)
				return nil
			},
		})
	if err != nil {
		c.degrade("get", namespace, key, err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	now := c.clock.Now()
	if expiresAt != 0 && expiresAt <= now.UnixMilli() {
		// Expired. Remove lazily; the contract only requires that the
		// entry is absent from this point on.
		c.deleteRow(conn, namespace, key)
		return nil, false
	}

	value, err := c.decodeValue(namespace, key, stored, CompressionTag(tag), size)
	if err != nil {
		// A value that cannot be decoded is useless; drop the row so
		// the next write starts clean.
		c.degrade("get", namespace, key, err)
		c.deleteRow(conn, namespace, key)
		return nil, false
	}

	err = sqlitex.Execute(conn,
		`UPDATE entries SET last_access = ? WHERE namespace = ? AND key = ?`,
		&sqlitex.ExecOptions{Args: []any{now.UnixMilli(), namespace, key}})
	if err != nil {
		// The value itself is good; stale recency only skews future
		// eviction order.
		c.logger.Warn("cache recency update failed",
			"namespace", namespace, "key", key, "error", err)
	}

	return value, true
}

// Set stores value under (namespace, key), replacing any previous
// value, and then re-enforces the namespace and global budgets. Errors
// degrade to a no-op; the return reports whether the value was stored.
func (c *Cache) Set(ctx context.Context, namespace, key string, value []byte) bool {
	stored, tag, err := c.encodeValue(namespace, key, value)
	if err != nil {
		c.degrade("set", namespace, key, err)
		return false
	}

	var expiresAt int64
	if ttl := c.ttlFor(namespace); ttl > 0 {
		expiresAt = c.clock.Now().Add(ttl).UnixMilli()
	}

	conn, err := c.pool.Take(ctx)
	if err != nil {
		c.degrade("set", namespace, key, err)
		return false
	}
	defer c.pool.Put(conn)

	if err := c.writeEntry(conn, namespace, key, stored, int64(len(value)), tag, expiresAt); err != nil {
		c.degrade("set", namespace, key, err)
		return false
	}
	return true
}

// writeEntry upserts a row and enforces budgets in one transaction.
func (c *Cache) writeEntry(conn *sqlite.Conn, namespace, key string, stored []byte, size int64, tag CompressionTag, expiresAt int64) (err error) {
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO entries
			(namespace, key, value, size, stored_size, compression, expires_at, last_access)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				namespace, key, stored, size, int64(len(stored)),
				int64(tag), expiresAt, c.clock.Now().UnixMilli(),
			},
		})
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	if _, err := c.enforceNamespaceBudget(conn, namespace); err != nil {
		return err
	}
	_, err = c.enforceGlobalBudget(conn)
	return err
}

// Delete removes the entry under (namespace, key). It reports whether
// an entry was actually removed; I/O errors degrade to false.
func (c *Cache) Delete(ctx context.Context, namespace, key string) bool {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		c.degrade("delete", namespace, key, err)
		return false
	}
	defer c.pool.Put(conn)
	return c.deleteRow(conn, namespace, key)
}

// ClearNamespace removes every entry in the given namespace. Entries
// in other namespaces are untouched.
func (c *Cache) ClearNamespace(ctx context.Context, namespace string) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		c.degrade("clear", namespace, "", err)
		return
	}
	defer c.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM entries WHERE namespace = ?`,
		&sqlitex.ExecOptions{Args: []any{namespace}})
	if err != nil {
		c.degrade("clear", namespace, "", err)
		return
	}
	c.logger.Info("cache namespace cleared",
		"namespace", namespace, "entries", conn.Changes())
}

// Stats reports entry counts and sizes, globally and per namespace.
// On error it returns zeroed counts (with IOErrors still populated).
func (c *Cache) Stats(ctx context.Context) Stats {
	stats := Stats{
		Namespaces: make(map[string]NamespaceStats),
		IOErrors:   c.ioErrors.Load(),
	}

	conn, err := c.pool.Take(ctx)
	if err != nil {
		c.degrade("stats", "", "", err)
		return stats
	}
	defer c.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`SELECT namespace, COUNT(*), SUM(size), SUM(stored_size)
			FROM entries GROUP BY namespace`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ns := NamespaceStats{
					Entries:     stmt.ColumnInt64(1),
					TotalBytes:  stmt.ColumnInt64(2),
					StoredBytes: stmt.ColumnInt64(3),
				}
				stats.Namespaces[stmt.ColumnText(0)] = ns
				stats.Entries += ns.Entries
				stats.TotalBytes += ns.TotalBytes
				stats.StoredBytes += ns.StoredBytes
				return nil
			},
		})
	if err != nil {
		c.degrade("stats", "", "", err)
		return Stats{Namespaces: map[string]NamespaceStats{}, IOErrors: c.ioErrors.Load()}
	}
	return stats
}

// Sweep removes expired rows, re-enforces all budgets, and returns
// freed pages to the filesystem. Called periodically by the service;
// safe to call concurrently with normal operations.
func (c *Cache) Sweep(ctx context.Context) SweepStats {
	var result SweepStats

	conn, err := c.pool.Take(ctx)
	if err != nil {
		c.degrade("sweep", "", "", err)
		return result
	}
	defer c.pool.Put(conn)

	now := c.clock.Now().UnixMilli()
	err = sqlitex.Execute(conn,
		`DELETE FROM entries WHERE expires_at != 0 AND expires_at <= ?`,
		&sqlitex.ExecOptions{Args: []any{now}})
	if err != nil {
		c.degrade("sweep", "", "", err)
		return result
	}
	result.Expired = int64(conn.Changes())

	// Budgets can drift past their limits between writes when limits
	// are reconfigured downward; the sweep brings them back.
	namespaces := make([]string, 0, 8)
	err = sqlitex.Execute(conn,
		`SELECT DISTINCT namespace FROM entries`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				namespaces = append(namespaces, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		c.degrade("sweep", "", "", err)
		return result
	}
	for _, namespace := range namespaces {
		evicted, err := c.enforceNamespaceBudget(conn, namespace)
		if err != nil {
			c.degrade("sweep", namespace, "", err)
			return result
		}
		result.Evicted += evicted
	}
	evicted, err := c.enforceGlobalBudget(conn)
	if err != nil {
		c.degrade("sweep", "", "", err)
		return result
	}
	result.Evicted += evicted

	if err := sqlitex.ExecuteTransient(conn, "PRAGMA incremental_vacuum(256)", nil); err != nil {
		c.logger.Warn("cache incremental vacuum failed", "error", err)
	}

	if result.Expired > 0 || result.Evicted > 0 {
		c.logger.Info("cache sweep",
			"expired", result.Expired, "evicted", result.Evicted)
	}
	return result
}

// enforceNamespaceBudget evicts least-recently-used rows from the
// namespace until its stored size fits the configured limit. Returns
// the number of rows evicted.
func (c *Cache) enforceNamespaceBudget(conn *sqlite.Conn, namespace string) (int64, error) {
	limit := c.limitFor(namespace)
	if limit <= 0 {
		return 0, nil
	}
	used, err := c.storedBytes(conn, namespace)
	if err != nil {
		return 0, err
	}
	return c.evictLRU(conn, namespace, used-limit)
}

// enforceGlobalBudget evicts least-recently-used rows across all
// namespaces until the cache fits TotalLimit.
func (c *Cache) enforceGlobalBudget(conn *sqlite.Conn) (int64, error) {
	if c.config.TotalLimit <= 0 {
		return 0, nil
	}
	used, err := c.storedBytes(conn, "")
	if err != nil {
		return 0, err
	}
	return c.evictLRU(conn, "", used-c.config.TotalLimit)
}

// evictLRU deletes rows in last_access order (oldest first) until at
// least overage bytes are freed. An empty namespace means evict across
// all namespaces. Returns the number of rows deleted.
//
// Candidates are selected in small batches and only the prefix that
// covers the overage is deleted, so a one-byte overrun never evicts
// more than the single oldest entry.
func (c *Cache) evictLRU(conn *sqlite.Conn, namespace string, overage int64) (int64, error) {
	if overage <= 0 {
		return 0, nil
	}

	const batchSize = 16
	var evicted int64

	for overage > 0 {
		query := `SELECT rowid, stored_size FROM entries ORDER BY last_access ASC LIMIT ?`
		args := []any{batchSize}
		if namespace != "" {
			query = `SELECT rowid, stored_size FROM entries WHERE namespace = ? ORDER BY last_access ASC LIMIT ?`
			args = []any{namespace, batchSize}
		}

		var victims []int64
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if overage <= 0 {
					return nil
				}
				victims = append(victims, stmt.ColumnInt64(0))
				overage -= stmt.ColumnInt64(1)
				return nil
			},
		})
		if err != nil {
			return evicted, fmt.Errorf("selecting eviction candidates in %q: %w", namespace, err)
		}
		if len(victims) == 0 {
			break
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(victims)), ",")
		deleteArgs := make([]any, len(victims))
		for i, rowid := range victims {
			deleteArgs[i] = rowid
		}
		err = sqlitex.Execute(conn,
			`DELETE FROM entries WHERE rowid IN (`+placeholders+`)`,
			&sqlitex.ExecOptions{Args: deleteArgs})
		if err != nil {
			return evicted, fmt.Errorf("evicting from %q: %w", namespace, err)
		}
		evicted += int64(len(victims))
	}
	return evicted, nil
}

// storedBytes returns the physical bytes used by a namespace, or by
// the whole cache when namespace is empty.
func (c *Cache) storedBytes(conn *sqlite.Conn, namespace string) (int64, error) {
	query := `SELECT COALESCE(SUM(stored_size), 0) FROM entries`
	var args []any
	if namespace != "" {
		query += ` WHERE namespace = ?`
		args = []any{namespace}
	}

	var used int64
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			used = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("measuring %q: %w", namespace, err)
	}
	return used, nil
}

// deleteRow removes one entry outside any caller transaction and
// reports whether a row existed. Best-effort: failures are counted
// and logged.
func (c *Cache) deleteRow(conn *sqlite.Conn, namespace, key string) bool {
	err := sqlitex.Execute(conn,
		`DELETE FROM entries WHERE namespace = ? AND key = ?`,
		&sqlitex.ExecOptions{Args: []any{namespace, key}})
	if err != nil {
		c.degrade("delete", namespace, key, err)
		return false
	}
	return conn.Changes() > 0
}

// encodeValue compresses and optionally seals a value for storage.
func (c *Cache) encodeValue(namespace, key string, value []byte) ([]byte, CompressionTag, error) {
	stored, tag := compressValue(value)
	if c.sealer != nil {
		sealed, err := c.sealer.seal(namespace, key, stored)
		if err != nil {
			return nil, 0, err
		}
		stored = sealed
	}
	return stored, tag, nil
}

// decodeValue reverses encodeValue.
func (c *Cache) decodeValue(namespace, key string, stored []byte, tag CompressionTag, size int64) ([]byte, error) {
	if c.sealer != nil {
		opened, err := c.sealer.open(namespace, key, stored)
		if err != nil {
			return nil, err
		}
		stored = opened
	}
	return decompressValue(stored, tag, int(size))
}

// ttlFor returns the TTL for a namespace, honoring overrides.
func (c *Cache) ttlFor(namespace string) time.Duration {
	if ttl, ok := c.config.NamespaceTTL[namespace]; ok {
		return ttl
	}
	return c.config.TTL
}

// limitFor returns the byte budget for a namespace. Zero or negative
// means unlimited.
func (c *Cache) limitFor(namespace string) int64 {
	if limit, ok := c.config.NamespaceLimits[namespace]; ok {
		return limit
	}
	return c.config.DefaultNamespaceLimit
}

// degrade records an operation that fell back to a miss or no-op.
func (c *Cache) degrade(op, namespace, key string, err error) {
	c.ioErrors.Add(1)
	c.logger.Warn("cache operation degraded",
		"op", op, "namespace", namespace, "key", key, "error", err)
}
