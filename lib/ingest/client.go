// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/bureau-foundation/docket/lib/codec"
	"github.com/bureau-foundation/docket/lib/fetch"
)

const (
	// clientDialTimeout bounds the Unix socket connect.
	clientDialTimeout = 5 * time.Second

	// clientResponseTimeout is the fallback read deadline when the
	// caller's context has none. Parse and fetch calls legitimately
	// run long (archive extraction, batch fetch with retries), so
	// this is generous.
	clientResponseTimeout = 5 * time.Minute
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// SocketPath is the Unix socket the service listens on. Required.
	SocketPath string

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client talks to a running docket service over its Unix socket. Each
// call opens one connection. Safe for concurrent use.
type Client struct {
	socketPath string
	logger     *slog.Logger
}

// NewClient builds a Client from the given configuration.
func NewClient(config ClientConfig) (*Client, error) {
	if config.SocketPath == "" {
		return nil, fmt.Errorf("ingest: SocketPath is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		socketPath: config.SocketPath,
		logger:     logger,
	}, nil
}

// Parse sends one document to the service for parsing.
func (c *Client) Parse(ctx context.Context, request *ParseRequest) (*ParseResult, error) {
	request.Action = ActionParse
	var result ParseResult
	if err := c.call(ctx, ActionParse, request, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Fetch asks the service to retrieve a batch of URLs.
func (c *Client) Fetch(ctx context.Context, urls []string, opts fetch.Options) (*fetch.Result, error) {
	request := &FetchRequest{
		Action:  ActionFetch,
		URLs:    urls,
		Referer: opts.Referer,
	}
	if opts.Timeout > 0 {
		seconds := int64(opts.Timeout / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		request.TimeoutSeconds = seconds
	}

	var result fetch.Result
	if err := c.call(ctx, ActionFetch, request, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stats returns a snapshot of the service's caches and counters.
func (c *Client) Stats(ctx context.Context) (*ServiceStats, error) {
	var stats ServiceStats
	if err := c.call(ctx, ActionStats, &StatsRequest{Action: ActionStats}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Clear drops every cache entry in one namespace.
func (c *Client) Clear(ctx context.Context, namespace string) (*ClearResponse, error) {
	request := &ClearRequest{Action: ActionClear, Namespace: namespace}
	var response ClearResponse
	if err := c.call(ctx, ActionClear, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// dial establishes a connection to the service socket.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: clientDialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("ingest: connecting to service at %s: %w", c.socketPath, err)
	}
	return conn, nil
}

// call handles the request/response cycle shared by every action:
// dial, write the request, read the response, surface a service-side
// error, decode into result.
func (c *Client) call(ctx context.Context, action string, request, result any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := WriteMessage(conn, request); err != nil {
		return fmt.Errorf("ingest: %s: writing request: %w", action, err)
	}

	deadline := time.Now().Add(clientResponseTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	raw, err := ReadRawMessage(conn)
	if err != nil {
		return fmt.Errorf("ingest: %s: reading response: %w", action, err)
	}
	if err := checkError(raw); err != nil {
		return fmt.Errorf("ingest: %s: %w", action, err)
	}
	if err := codec.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("ingest: %s: decoding response: %w", action, err)
	}
	return nil
}

// checkError inspects raw CBOR bytes for an ErrorResponse. If the
// "error" field is present and non-empty, returns it as an error.
func checkError(raw []byte) error {
	var errResp ErrorResponse
	if err := codec.Unmarshal(raw, &errResp); err != nil {
		// Not an error response; the caller decodes into the
		// expected type.
		return nil
	}
	if errResp.Error != "" {
		return &ServiceError{Message: errResp.Error}
	}
	return nil
}

// ServiceError is returned when the docket service responds with an
// error message.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}
