// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bureau-foundation/docket/lib/netutil"
)

// Request is one URL for the downstream fetch service to retrieve.
type Request struct {
	URL     string `json:"url"`
	Referer string `json:"referer,omitempty"`
}

// FetchedResource is one successfully fetched resource in a batch
// response. ResourceID may be empty when the service does not assign
// IDs; the client derives one from the content in that case.
type FetchedResource struct {
	URL         string `json:"url"`
	Data        []byte `json:"data"`
	ResourceID  string `json:"resource_id,omitempty"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// FailedResource is one per-URL failure in a batch response.
type FailedResource struct {
	URL          string `json:"url"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

// BatchResult is the downstream service's response to one batch call.
type BatchResult struct {
	Resources []FetchedResource `json:"resources"`
	Failed    []FailedResource  `json:"failed"`
}

// Downstream retrieves batches of URLs. A non-nil error means the batch
// as a whole did not happen; per-URL failures are reported inside the
// result instead.
type Downstream interface {
	FetchBatch(ctx context.Context, requests []Request) (*BatchResult, error)
}

// batchRequest is the JSON body posted to the downstream service. The
// timeout mirrors the context deadline so the service can bound itself.
type batchRequest struct {
	Requests       []Request `json:"requests"`
	TimeoutSeconds int       `json:"timeout_seconds,omitempty"`
}

// HTTPDownstreamConfig holds configuration for creating an HTTPDownstream.
type HTTPDownstreamConfig struct {
	// BaseURL is the base URL of the fetch service (e.g., "http://localhost:8643").
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// HTTPDownstream talks JSON over HTTP to a fetch service exposing the
// batch contract at POST /v1/fetch.
type HTTPDownstream struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPDownstream creates a downstream client for the given service.
func NewHTTPDownstream(config HTTPDownstreamConfig) (*HTTPDownstream, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("fetch: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("fetch: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPDownstream{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// FetchBatch posts the requests to the service and decodes its response.
func (d *HTTPDownstream) FetchBatch(ctx context.Context, requests []Request) (*BatchResult, error) {
	payload := batchRequest{Requests: requests}
	if deadline, ok := ctx.Deadline(); ok {
		seconds := int(time.Until(deadline) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		payload.TimeoutSeconds = seconds
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("fetch: encoding batch request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/fetch", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("fetch: creating batch request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := d.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetch: batch request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: service returned %d: %s",
			response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var result BatchResult
	if err := netutil.DecodeResponse(response.Body, &result); err != nil {
		return nil, fmt.Errorf("fetch: decoding batch response: %w", err)
	}
	return &result, nil
}
