// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/docket/lib/blobstore"
	"github.com/bureau-foundation/docket/lib/codec"
	"github.com/bureau-foundation/docket/lib/diskcache"
)

// namespace is the disk cache namespace for raw fetched resources.
const namespace = "fetch"

// FailureClass classifies a per-URL fetch failure.
type FailureClass string

const (
	// FailureUnsupportedType: the URL or served content maps to a file
	// type outside the allow-list.
	FailureUnsupportedType FailureClass = "unsupported_type"
	// FailureFetchFailed: the resource could not be retrieved.
	FailureFetchFailed FailureClass = "fetch_failed"
	// FailureTimeout: the batch deadline expired before the fetch completed.
	FailureTimeout FailureClass = "timeout"
)

// Failure is the outcome of one URL that was not fetched.
type Failure struct {
	Class   FailureClass `cbor:"class" json:"class"`
	Message string       `cbor:"message,omitempty" json:"message,omitempty"`
}

// Fetched is the outcome of one URL that was fetched (or served from
// cache). Content holds the raw bytes; ResourceID is the canonical
// identifier whose extension reflects the server-detected file type.
type Fetched struct {
	Content     []byte `cbor:"content,omitempty" json:"content,omitempty"`
	ResourceID  string `cbor:"resource_id" json:"resource_id"`
	Filename    string `cbor:"filename,omitempty" json:"filename,omitempty"`
	ContentType string `cbor:"content_type,omitempty" json:"content_type,omitempty"`
	FileType    string `cbor:"file_type,omitempty" json:"file_type,omitempty"`
	Size        int64  `cbor:"size" json:"size"`
	FromCache   bool   `cbor:"from_cache,omitempty" json:"from_cache,omitempty"`
}

// Result maps every input URL of a batch to its outcome. Aliased inputs
// (URLs that canonicalize identically) each get their own entry sharing
// one fetched resource. A URL appears in exactly one of Resources or
// Failed.
type Result struct {
	Resources map[string]*Fetched `cbor:"resources,omitempty" json:"resources,omitempty"`
	Failed    map[string]Failure  `cbor:"failed,omitempty" json:"failed,omitempty"`
	// IDs maps each successfully fetched input URL to its canonical
	// resource ID.
	IDs map[string]string `cbor:"ids,omitempty" json:"ids,omitempty"`
}

// Stats is a snapshot of the client's counters. Hits and misses count
// cache lookups per canonical URL; fetched and failed count canonical
// URLs that went through the network path.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Fetched uint64 `json:"fetched"`
	Failed  uint64 `json:"failed"`
}

// cachedResource is the CBOR cache row for one canonical URL.
type cachedResource struct {
	Content     []byte `cbor:"content"`
	ResourceID  string `cbor:"resource_id"`
	Filename    string `cbor:"filename"`
	ContentType string `cbor:"content_type"`
	FileType    string `cbor:"file_type"`
	Size        int64  `cbor:"size"`
}

// Options tunes one FetchBatch call.
type Options struct {
	// Timeout overrides the client's default batch deadline.
	Timeout time.Duration
	// Referer is sent for URLs whose host has no rules-configured
	// referer. Callers fetching a document's embedded resources pass
	// the document's own URL here.
	Referer string
}

// Config holds configuration for creating a Client.
type Config struct {
	// Downstream performs the actual retrieval. If nil, every URL that
	// misses the cache fails with FailureFetchFailed.
	Downstream Downstream
	// Disk caches fetched resources under their canonical URL. If nil,
	// nothing is cached.
	Disk *diskcache.Cache
	// Rules tunes canonicalization and filtering. If nil, DefaultRules
	// is used.
	Rules *Rules
	// Workers bounds concurrent downstream calls. Default 4.
	Workers int
	// ChunkSize is the number of URLs per downstream call. Default 8.
	ChunkSize int
	// MaxAttempts bounds attempts per chunk, including the first.
	// Default 3.
	MaxAttempts int
	// RetryDelay is the backoff before the first retry; it doubles per
	// attempt with jitter. Default 250ms.
	RetryDelay time.Duration
	// RatePerSecond limits downstream calls. Default 8.
	RatePerSecond float64
	// Timeout is the default batch deadline. Default 2m.
	Timeout time.Duration
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client fetches remote resources with caching, filtering, and bounded
// concurrency. Safe for concurrent use.
type Client struct {
	downstream  Downstream
	disk        *diskcache.Cache
	rules       *Rules
	workers     int
	chunkSize   int
	maxAttempts int
	retryDelay  time.Duration
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a fetch client.
func New(config Config) *Client {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = 8
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 250 * time.Millisecond
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 8
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.Rules == nil {
		config.Rules = DefaultRules()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	burst := int(config.RatePerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		downstream:  config.Downstream,
		disk:        config.Disk,
		rules:       config.Rules,
		workers:     config.Workers,
		chunkSize:   config.ChunkSize,
		maxAttempts: config.MaxAttempts,
		retryDelay:  config.RetryDelay,
		timeout:     config.Timeout,
		limiter:     rate.NewLimiter(rate.Limit(config.RatePerSecond), burst),
		logger:      config.Logger,
	}
}

// FetchBatch retrieves the given URLs. Every input URL maps to exactly
// one outcome in the result; FetchBatch itself never fails. URLs whose
// canonical form is already cached are served without network traffic,
// and URLs that canonicalize identically are fetched once.
func (c *Client) FetchBatch(ctx context.Context, urls []string, opts Options) *Result {
	result := &Result{
		Resources: make(map[string]*Fetched),
		Failed:    make(map[string]Failure),
		IDs:       make(map[string]string),
	}
	if len(urls) == 0 {
		return result
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Canonicalize and group aliases: inputs sharing a canonical form
	// are fetched once and fanned back out at the end.
	seen := make(map[string]bool, len(urls))
	groups := make(map[string][]string)
	var canonicals []string
	for _, input := range urls {
		if seen[input] {
			continue
		}
		seen[input] = true
		canonical, err := canonicalizeWith(c.rules, input)
		if err != nil {
			result.Failed[input] = Failure{Class: FailureFetchFailed, Message: err.Error()}
			continue
		}
		if _, ok := groups[canonical]; !ok {
			canonicals = append(canonicals, canonical)
		}
		groups[canonical] = append(groups[canonical], input)
	}

	// Cache-first, then preflight filtering. Only URLs that survive
	// both cost any network traffic.
	fetchedByCanonical := make(map[string]*Fetched)
	failedByCanonical := make(map[string]Failure)
	var pending []string
	for _, canonical := range canonicals {
		if cached, ok := c.lookupCache(ctx, canonical); ok {
			fetchedByCanonical[canonical] = cached
			c.mu.Lock()
			c.stats.Hits++
			c.mu.Unlock()
			continue
		}
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()

		if failure, rejected := c.preflight(canonical); rejected {
			failedByCanonical[canonical] = failure
			continue
		}
		pending = append(pending, canonical)
	}

	if len(pending) > 0 && c.downstream == nil {
		failure := Failure{Class: FailureFetchFailed, Message: "no downstream fetch service configured"}
		for _, canonical := range pending {
			failedByCanonical[canonical] = failure
		}
		pending = nil
	}

	if len(pending) > 0 {
		var mu sync.Mutex
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(c.workers)
		for start := 0; start < len(pending); start += c.chunkSize {
			chunk := pending[start:min(start+c.chunkSize, len(pending))]
			group.Go(func() error {
				c.fetchChunk(groupCtx, chunk, opts, &mu, fetchedByCanonical, failedByCanonical)
				return nil
			})
		}
		group.Wait()
	}

	// Fan outcomes back out to the original input URLs.
	var fetched, failed int
	for _, canonical := range canonicals {
		inputs := groups[canonical]
		if entry, ok := fetchedByCanonical[canonical]; ok {
			if !entry.FromCache {
				fetched++
			}
			for _, input := range inputs {
				result.Resources[input] = entry
				result.IDs[input] = entry.ResourceID
			}
			continue
		}
		failure, ok := failedByCanonical[canonical]
		if !ok {
			failure = Failure{Class: FailureFetchFailed, Message: "no result returned for URL"}
		}
		failed++
		for _, input := range inputs {
			result.Failed[input] = failure
		}
	}

	c.mu.Lock()
	c.stats.Fetched += uint64(fetched)
	c.stats.Failed += uint64(failed)
	c.mu.Unlock()

	c.logger.Debug("fetch batch complete",
		"urls", len(urls),
		"fetched", fetched,
		"cached", len(fetchedByCanonical)-fetched,
		"failed", failed,
	)
	return result
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// fetchChunk retrieves one chunk of canonical URLs and records the
// per-URL outcomes under mu.
func (c *Client) fetchChunk(ctx context.Context, chunk []string, opts Options, mu *sync.Mutex, fetched map[string]*Fetched, failed map[string]Failure) {
	requests := make([]Request, len(chunk))
	for index, canonical := range chunk {
		requests[index] = Request{URL: canonical, Referer: c.refererFor(canonical, opts)}
	}

	batch, err := c.fetchWithRetry(ctx, requests)
	if err != nil {
		failure := Failure{Class: classifyTransportError(err), Message: fmt.Sprintf("fetch batch: %v", err)}
		c.logger.Warn("fetch chunk failed", "urls", len(chunk), "error", err)
		mu.Lock()
		for _, canonical := range chunk {
			failed[canonical] = failure
		}
		mu.Unlock()
		return
	}

	outcomes := make(map[string]*Fetched, len(batch.Resources))
	failures := make(map[string]Failure, len(batch.Failed))
	for _, served := range batch.Resources {
		fileType, ok := c.contentFileType(served)
		if !ok {
			failures[served.URL] = Failure{
				Class:   FailureUnsupportedType,
				Message: fmt.Sprintf("content type %q is not supported", served.ContentType),
			}
			continue
		}
		id := served.ResourceID
		if id == "" {
			id = fetchedResourceID(served.Data, served.ContentType, served.URL)
		}
		entry := &Fetched{
			Content:     served.Data,
			ResourceID:  id,
			Filename:    servedFilename(served, id),
			ContentType: served.ContentType,
			FileType:    fileType,
			Size:        int64(len(served.Data)),
		}
		c.storeCache(ctx, served.URL, entry)
		outcomes[served.URL] = entry
	}
	for _, item := range batch.Failed {
		failures[item.URL] = Failure{
			Class:   classifyDownstreamError(item.ErrorType),
			Message: item.ErrorMessage,
		}
	}

	mu.Lock()
	for canonical, entry := range outcomes {
		fetched[canonical] = entry
	}
	for canonical, failure := range failures {
		failed[canonical] = failure
	}
	mu.Unlock()
}

// fetchWithRetry calls the downstream service with bounded retries and
// exponential backoff. Only transport-level errors are retried; per-URL
// failures inside a successful response are final.
func (c *Client) fetchWithRetry(ctx context.Context, requests []Request) (*BatchResult, error) {
	const maxDelay = 5 * time.Second

	delay := c.retryDelay
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		result, err := c.downstream.FetchBatch(ctx, requests)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt >= c.maxAttempts {
			return nil, lastErr
		}
		c.logger.Debug("fetch batch attempt failed",
			"attempt", attempt, "urls", len(requests), "error", err)

		jitter := time.Duration(rand.Int64N(int64(delay/4) + 1))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// preflight rejects a canonical URL before any network traffic: blocked
// hosts, and URL extensions outside the allow-list.
func (c *Client) preflight(canonical string) (Failure, bool) {
	parsed, err := url.Parse(canonical)
	if err != nil {
		return Failure{Class: FailureFetchFailed, Message: err.Error()}, true
	}
	host := parsed.Hostname()
	if c.rules.BlockedHost(host) {
		return Failure{
			Class:   FailureFetchFailed,
			Message: fmt.Sprintf("host %q is blocked", host),
		}, true
	}
	if extension := strings.ToLower(path.Ext(parsed.Path)); !c.rules.AllowedExtension(extension) {
		return Failure{
			Class:   FailureUnsupportedType,
			Message: fmt.Sprintf("extension %q is not supported", extension),
		}, true
	}
	return Failure{}, false
}

func (c *Client) refererFor(canonical string, opts Options) string {
	if parsed, err := url.Parse(canonical); err == nil {
		if referer := c.rules.RefererFor(parsed.Hostname()); referer != "" {
			return referer
		}
	}
	return opts.Referer
}

func (c *Client) lookupCache(ctx context.Context, canonical string) (*Fetched, bool) {
	if c.disk == nil {
		return nil, false
	}
	stored, ok := c.disk.Get(ctx, namespace, canonical)
	if !ok {
		return nil, false
	}
	var cached cachedResource
	if err := codec.Unmarshal(stored, &cached); err != nil {
		c.logger.Warn("cached fetch entry undecodable, evicting",
			"url", canonical, "error", err)
		c.disk.Delete(ctx, namespace, canonical)
		return nil, false
	}
	return &Fetched{
		Content:     cached.Content,
		ResourceID:  cached.ResourceID,
		Filename:    cached.Filename,
		ContentType: cached.ContentType,
		FileType:    cached.FileType,
		Size:        cached.Size,
		FromCache:   true,
	}, true
}

func (c *Client) storeCache(ctx context.Context, canonical string, entry *Fetched) {
	if c.disk == nil {
		return
	}
	encoded, err := codec.Marshal(cachedResource{
		Content:     entry.Content,
		ResourceID:  entry.ResourceID,
		Filename:    entry.Filename,
		ContentType: entry.ContentType,
		FileType:    entry.FileType,
		Size:        entry.Size,
	})
	if err != nil {
		c.logger.Warn("encoding fetch cache entry", "url", canonical, "error", err)
		return
	}
	c.disk.Set(ctx, namespace, canonical, encoded)
}

// contentFileType maps served content to a file type label (extension
// without the dot), preferring the server-declared content type over
// anything the URL claims. ok is false when the type falls outside the
// allow-list.
func (c *Client) contentFileType(served FetchedResource) (string, bool) {
	extension := ""
	if contentType := bareContentType(served.ContentType); contentType != "" {
		if mtype := mimetype.Lookup(contentType); mtype != nil {
			extension = mtype.Extension()
		}
	}
	if extension == "" {
		extension = pathExtension(served.URL)
	}
	if extension == "" {
		extension = mimetype.Detect(served.Data).Extension()
	}
	if !c.rules.AllowedExtension(extension) {
		return "", false
	}
	return strings.TrimPrefix(strings.ToLower(extension), "."), true
}

// fetchedResourceID derives a canonical resource ID for fetched bytes.
// The served content type decides the extension when it maps to a known
// one; the URL path is consulted otherwise. The URL extension alone is
// never trusted over the served type, since remote URLs frequently carry
// no extension or a misleading one.
func fetchedResourceID(content []byte, contentType, rawURL string) string {
	contentType = bareContentType(contentType)
	if mtype := mimetype.Lookup(contentType); mtype != nil && mtype.Extension() != "" {
		return blobstore.ResourceID(content, "", contentType)
	}
	name := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		name = path.Base(parsed.Path)
	}
	return blobstore.ResourceID(content, name, contentType)
}

func servedFilename(served FetchedResource, id string) string {
	if served.Filename != "" {
		return served.Filename
	}
	if parsed, err := url.Parse(served.URL); err == nil {
		if base := path.Base(parsed.Path); base != "." && base != "/" {
			return base
		}
	}
	return id
}

func bareContentType(contentType string) string {
	if index := strings.IndexByte(contentType, ';'); index >= 0 {
		contentType = contentType[:index]
	}
	return strings.TrimSpace(contentType)
}

func pathExtension(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(parsed.Path))
}

func classifyTransportError(err error) FailureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureFetchFailed
}

func classifyDownstreamError(errorType string) FailureClass {
	switch strings.ToLower(errorType) {
	case "timeout":
		return FailureTimeout
	case "unsupported_type":
		return FailureUnsupportedType
	default:
		return FailureFetchFailed
	}
}
