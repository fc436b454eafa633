// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/docket/lib/diskcache"
)

// fakeDownstream serves synthetic content for every requested URL,
// with per-URL failure and drop injection.
type fakeDownstream struct {
	mu          sync.Mutex
	calls       int
	requests    [][]Request
	contentType string
	resourceIDs map[string]string
	fail        map[string]FailedResource
	drop        map[string]bool
	err         error
	failFirst   bool
}

func (d *fakeDownstream) FetchBatch(ctx context.Context, requests []Request) (*BatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.requests = append(d.requests, requests)

	if d.failFirst {
		d.failFirst = false
		return nil, fmt.Errorf("connection reset by peer")
	}
	if d.err != nil {
		return nil, d.err
	}

	contentType := d.contentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	result := &BatchResult{}
	for _, request := range requests {
		if d.drop[request.URL] {
			continue
		}
		if failure, ok := d.fail[request.URL]; ok {
			failure.URL = request.URL
			result.Failed = append(result.Failed, failure)
			continue
		}
		result.Resources = append(result.Resources, FetchedResource{
			URL:         request.URL,
			Data:        []byte("content of " + request.URL),
			ResourceID:  d.resourceIDs[request.URL],
			ContentType: contentType,
		})
	}
	return result, nil
}

func (d *fakeDownstream) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestClient(downstream Downstream, configure func(*Config)) *Client {
	config := Config{
		Downstream: downstream,
		RetryDelay: time.Millisecond,
		Logger:     slog.New(slog.DiscardHandler),
	}
	if configure != nil {
		configure(&config)
	}
	return New(config)
}

func newTestDisk(t *testing.T) *diskcache.Cache {
	t.Helper()
	disk, err := diskcache.Open(diskcache.Config{
		Directory: t.TempDir(),
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { disk.Close() })
	return disk
}

func TestFetchBatchSuccess(t *testing.T) {
	downstream := &fakeDownstream{}
	client := newTestClient(downstream, nil)

	urls := []string{
		"https://x.example/one.pdf",
		"https://x.example/two.pdf",
	}
	result := client.FetchBatch(context.Background(), urls, Options{})

	if len(result.Failed) != 0 {
		t.Fatalf("failed = %v, want none", result.Failed)
	}
	for _, input := range urls {
		entry, ok := result.Resources[input]
		if !ok {
			t.Fatalf("no resource for %q", input)
		}
		if entry.FromCache {
			t.Errorf("%q marked from cache on first fetch", input)
		}
		if !strings.HasPrefix(entry.ResourceID, "res-") || !strings.HasSuffix(entry.ResourceID, ".pdf") {
			t.Errorf("resource id = %q, want res-*.pdf", entry.ResourceID)
		}
		if result.IDs[input] != entry.ResourceID {
			t.Errorf("IDs[%q] = %q, want %q", input, result.IDs[input], entry.ResourceID)
		}
		if entry.FileType != "pdf" {
			t.Errorf("file type = %q, want pdf", entry.FileType)
		}
		if entry.Size != int64(len(entry.Content)) {
			t.Errorf("size = %d, want %d", entry.Size, len(entry.Content))
		}
	}

	stats := client.Stats()
	if stats.Misses != 2 || stats.Fetched != 2 || stats.Hits != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 2 misses and 2 fetched", stats)
	}
}

// TestFetchBatchCacheHit covers the core canonicalization promise: a URL
// differing only by tracking noise reuses the cache entry of its clean
// sibling, with no second network call.
func TestFetchBatchCacheHit(t *testing.T) {
	downstream := &fakeDownstream{}
	client := newTestClient(downstream, func(config *Config) {
		config.Disk = newTestDisk(t)
	})
	ctx := context.Background()

	first := client.FetchBatch(ctx, []string{"https://x.example/doc.pdf?utm_source=a&b=2"}, Options{})
	if len(first.Resources) != 1 {
		t.Fatalf("first batch: %v", first.Failed)
	}
	if downstream.callCount() != 1 {
		t.Fatalf("downstream calls = %d, want 1", downstream.callCount())
	}

	second := client.FetchBatch(ctx, []string{"https://x.example/doc.pdf?b=2"}, Options{})
	entry, ok := second.Resources["https://x.example/doc.pdf?b=2"]
	if !ok {
		t.Fatalf("second batch failed: %v", second.Failed)
	}
	if downstream.callCount() != 1 {
		t.Errorf("downstream calls = %d after cached batch, want 1", downstream.callCount())
	}
	if !entry.FromCache {
		t.Error("second fetch not marked from cache")
	}

	var firstEntry *Fetched
	for _, value := range first.Resources {
		firstEntry = value
	}
	if !bytes.Equal(entry.Content, firstEntry.Content) {
		t.Error("cached content differs from fetched content")
	}
	if entry.ResourceID != firstEntry.ResourceID {
		t.Errorf("cached id = %q, fetched id = %q", entry.ResourceID, firstEntry.ResourceID)
	}

	stats := client.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Fetched != 1 {
		t.Errorf("stats = %+v, want 1 hit, 1 miss, 1 fetched", stats)
	}
}

func TestFetchBatchAliasesShareOneFetch(t *testing.T) {
	downstream := &fakeDownstream{}
	client := newTestClient(downstream, nil)

	urls := []string{
		"https://x.example/doc.pdf?utm_source=a&b=2",
		"https://x.example/doc.pdf?b=2",
	}
	result := client.FetchBatch(context.Background(), urls, Options{})

	if downstream.callCount() != 1 {
		t.Fatalf("downstream calls = %d, want 1", downstream.callCount())
	}
	if len(downstream.requests[0]) != 1 {
		t.Fatalf("requests in batch = %d, want aliases collapsed to 1", len(downstream.requests[0]))
	}

	first, ok := result.Resources[urls[0]]
	second, ok2 := result.Resources[urls[1]]
	if !ok || !ok2 {
		t.Fatalf("missing alias outcomes: %v", result.Failed)
	}
	if first.ResourceID != second.ResourceID {
		t.Errorf("aliases got different ids: %q vs %q", first.ResourceID, second.ResourceID)
	}
}

func TestFetchBatchPreflightUnsupported(t *testing.T) {
	downstream := &fakeDownstream{}
	client := newTestClient(downstream, nil)

	result := client.FetchBatch(context.Background(), []string{"https://x.example/tool.exe"}, Options{})

	failure, ok := result.Failed["https://x.example/tool.exe"]
	if !ok {
		t.Fatal("unsupported extension not failed")
	}
	if failure.Class != FailureUnsupportedType {
		t.Errorf("class = %q, want %q", failure.Class, FailureUnsupportedType)
	}
	if downstream.callCount() != 0 {
		t.Errorf("downstream calls = %d, want 0 for filtered URL", downstream.callCount())
	}
}

func TestFetchBatchBlockedHost(t *testing.T) {
	downstream := &fakeDownstream{}
	rules, err := ParseRules([]byte(`{"blocked_hosts": ["blocked.example"]}`))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	client := newTestClient(downstream, func(config *Config) {
		config.Rules = rules
	})

	result := client.FetchBatch(context.Background(), []string{"https://blocked.example/doc.pdf"}, Options{})

	failure, ok := result.Failed["https://blocked.example/doc.pdf"]
	if !ok {
		t.Fatal("blocked host not failed")
	}
	if failure.Class != FailureFetchFailed || !strings.Contains(failure.Message, "blocked") {
		t.Errorf("failure = %+v", failure)
	}
	if downstream.callCount() != 0 {
		t.Errorf("downstream calls = %d, want 0", downstream.callCount())
	}
}

func TestFetchBatchDownstreamItemFailure(t *testing.T) {
	downstream := &fakeDownstream{
		fail: map[string]FailedResource{
			"https://x.example/slow.pdf": {ErrorType: "timeout", ErrorMessage: "upstream deadline exceeded"},
		},
	}
	client := newTestClient(downstream, nil)

	result := client.FetchBatch(context.Background(), []string{
		"https://x.example/slow.pdf",
		"https://x.example/fast.pdf",
	}, Options{})

	failure, ok := result.Failed["https://x.example/slow.pdf"]
	if !ok {
		t.Fatal("downstream failure not reported")
	}
	if failure.Class != FailureTimeout {
		t.Errorf("class = %q, want %q", failure.Class, FailureTimeout)
	}
	if _, ok := result.Resources["https://x.example/fast.pdf"]; !ok {
		t.Error("sibling URL failed alongside")
	}

	stats := client.Stats()
	if stats.Fetched != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 fetched, 1 failed", stats)
	}
}

func TestFetchBatchTransportRetry(t *testing.T) {
	downstream := &fakeDownstream{failFirst: true}
	client := newTestClient(downstream, nil)

	result := client.FetchBatch(context.Background(), []string{"https://x.example/doc.pdf"}, Options{})

	if downstream.callCount() != 2 {
		t.Errorf("downstream calls = %d, want 2 (one retry)", downstream.callCount())
	}
	if _, ok := result.Resources["https://x.example/doc.pdf"]; !ok {
		t.Errorf("fetch failed despite successful retry: %v", result.Failed)
	}
}

func TestFetchBatchTransportExhausted(t *testing.T) {
	downstream := &fakeDownstream{err: fmt.Errorf("connection refused")}
	client := newTestClient(downstream, func(config *Config) {
		config.MaxAttempts = 2
	})

	result := client.FetchBatch(context.Background(), []string{"https://x.example/doc.pdf"}, Options{})

	if downstream.callCount() != 2 {
		t.Errorf("downstream calls = %d, want 2", downstream.callCount())
	}
	failure, ok := result.Failed["https://x.example/doc.pdf"]
	if !ok {
		t.Fatal("exhausted retries did not fail the URL")
	}
	if failure.Class != FailureFetchFailed {
		t.Errorf("class = %q, want %q", failure.Class, FailureFetchFailed)
	}
	if !strings.Contains(failure.Message, "connection refused") {
		t.Errorf("message = %q, want underlying cause", failure.Message)
	}
}

func TestFetchBatchNoDownstream(t *testing.T) {
	client := newTestClient(nil, nil)

	result := client.FetchBatch(context.Background(), []string{"https://x.example/doc.pdf"}, Options{})

	failure, ok := result.Failed["https://x.example/doc.pdf"]
	if !ok {
		t.Fatal("missing downstream did not fail the URL")
	}
	if !strings.Contains(failure.Message, "no downstream") {
		t.Errorf("message = %q", failure.Message)
	}
}

func TestFetchBatchInvalidURL(t *testing.T) {
	downstream := &fakeDownstream{}
	client := newTestClient(downstream, nil)

	result := client.FetchBatch(context.Background(), []string{"://bad", "ftp://x/y.pdf"}, Options{})

	if len(result.Failed) != 2 {
		t.Fatalf("failed = %d, want 2", len(result.Failed))
	}
	for input, failure := range result.Failed {
		if failure.Class != FailureFetchFailed {
			t.Errorf("%q class = %q, want %q", input, failure.Class, FailureFetchFailed)
		}
	}
	if downstream.callCount() != 0 {
		t.Errorf("downstream calls = %d, want 0", downstream.callCount())
	}
}

// TestFetchBatchPostTypeCheck: an extensionless URL passes preflight,
// but the served content type still has to clear the allow-list.
func TestFetchBatchPostTypeCheck(t *testing.T) {
	downstream := &fakeDownstream{contentType: "image/png"}
	rules, err := ParseRules([]byte(`{"allowed_extensions": [".pdf"]}`))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	client := newTestClient(downstream, func(config *Config) {
		config.Rules = rules
	})

	result := client.FetchBatch(context.Background(), []string{"https://x.example/resource"}, Options{})

	if downstream.callCount() != 1 {
		t.Fatalf("downstream calls = %d, want 1", downstream.callCount())
	}
	failure, ok := result.Failed["https://x.example/resource"]
	if !ok {
		t.Fatal("disallowed served type not failed")
	}
	if failure.Class != FailureUnsupportedType {
		t.Errorf("class = %q, want %q", failure.Class, FailureUnsupportedType)
	}
}

// TestFetchBatchDerivedID: with no server-assigned ID, the client
// derives one whose extension reflects the served content type, not the
// URL.
func TestFetchBatchDerivedID(t *testing.T) {
	downstream := &fakeDownstream{contentType: "image/png"}
	client := newTestClient(downstream, nil)

	result := client.FetchBatch(context.Background(), []string{"https://x.example/image"}, Options{})

	entry, ok := result.Resources["https://x.example/image"]
	if !ok {
		t.Fatalf("fetch failed: %v", result.Failed)
	}
	if !strings.HasPrefix(entry.ResourceID, "res-") || !strings.HasSuffix(entry.ResourceID, ".png") {
		t.Errorf("resource id = %q, want res-*.png from served type", entry.ResourceID)
	}
	if entry.FileType != "png" {
		t.Errorf("file type = %q, want png", entry.FileType)
	}
}

func TestFetchBatchServerAssignedIDWins(t *testing.T) {
	downstream := &fakeDownstream{
		resourceIDs: map[string]string{
			"https://x.example/doc.pdf": "res-aabbccddeeff.pdf",
		},
	}
	client := newTestClient(downstream, nil)

	result := client.FetchBatch(context.Background(), []string{"https://x.example/doc.pdf"}, Options{})

	if got := result.IDs["https://x.example/doc.pdf"]; got != "res-aabbccddeeff.pdf" {
		t.Errorf("id = %q, want the server-assigned one", got)
	}
}

// TestFetchBatchWriteBackSurvivesClient: the cache entry outlives the
// client that wrote it; a fresh client against the same disk serves the
// URL without a downstream.
func TestFetchBatchWriteBackSurvivesClient(t *testing.T) {
	disk := newTestDisk(t)
	ctx := context.Background()

	downstream := &fakeDownstream{}
	writer := newTestClient(downstream, func(config *Config) {
		config.Disk = disk
	})
	first := writer.FetchBatch(ctx, []string{"https://x.example/doc.pdf"}, Options{})
	if len(first.Resources) != 1 {
		t.Fatalf("first batch failed: %v", first.Failed)
	}

	reader := newTestClient(nil, func(config *Config) {
		config.Disk = disk
	})
	second := reader.FetchBatch(ctx, []string{"https://x.example/doc.pdf"}, Options{})

	entry, ok := second.Resources["https://x.example/doc.pdf"]
	if !ok {
		t.Fatalf("cached fetch failed: %v", second.Failed)
	}
	if !entry.FromCache {
		t.Error("entry not marked from cache")
	}
	if entry.ResourceID != first.IDs["https://x.example/doc.pdf"] {
		t.Errorf("cached id = %q, want %q", entry.ResourceID, first.IDs["https://x.example/doc.pdf"])
	}
}

func TestFetchBatchDroppedResult(t *testing.T) {
	downstream := &fakeDownstream{drop: map[string]bool{"https://x.example/gone.pdf": true}}
	client := newTestClient(downstream, nil)

	result := client.FetchBatch(context.Background(), []string{"https://x.example/gone.pdf"}, Options{})

	failure, ok := result.Failed["https://x.example/gone.pdf"]
	if !ok {
		t.Fatal("dropped URL has no outcome")
	}
	if failure.Class != FailureFetchFailed || !strings.Contains(failure.Message, "no result") {
		t.Errorf("failure = %+v", failure)
	}
}

func TestFetchBatchDuplicateInputs(t *testing.T) {
	downstream := &fakeDownstream{}
	client := newTestClient(downstream, nil)

	url := "https://x.example/doc.pdf"
	result := client.FetchBatch(context.Background(), []string{url, url, url}, Options{})

	if downstream.callCount() != 1 || len(downstream.requests[0]) != 1 {
		t.Errorf("duplicates were not collapsed: %d calls", downstream.callCount())
	}
	if len(result.Resources) != 1 {
		t.Errorf("resources = %d, want 1", len(result.Resources))
	}
}

func TestFetchBatchEmpty(t *testing.T) {
	client := newTestClient(nil, nil)
	result := client.FetchBatch(context.Background(), nil, Options{})
	if len(result.Resources) != 0 || len(result.Failed) != 0 || len(result.IDs) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
	if stats := client.Stats(); stats != (Stats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestFetchBatchChunking(t *testing.T) {
	downstream := &fakeDownstream{}
	client := newTestClient(downstream, func(config *Config) {
		config.ChunkSize = 2
		config.Workers = 2
	})

	urls := []string{
		"https://x.example/a.pdf",
		"https://x.example/b.pdf",
		"https://x.example/c.pdf",
		"https://x.example/d.pdf",
		"https://x.example/e.pdf",
	}
	result := client.FetchBatch(context.Background(), urls, Options{})

	if len(result.Resources) != len(urls) {
		t.Fatalf("resources = %d, want %d: %v", len(result.Resources), len(urls), result.Failed)
	}
	if downstream.callCount() != 3 {
		t.Errorf("downstream calls = %d, want 3 chunks of <=2", downstream.callCount())
	}
}
