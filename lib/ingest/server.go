// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/docket/lib/codec"
	"github.com/bureau-foundation/docket/lib/fetch"
	"github.com/bureau-foundation/docket/lib/netutil"
)

// Connection timeout constants.
const (
	// readTimeout is how long the server waits for the client to send
	// its request. A well-behaved client sends it immediately after
	// connecting.
	readTimeout = 30 * time.Second

	// writeTimeout is how long the server waits for a response write.
	writeTimeout = 10 * time.Second
)

// ServerConfig holds configuration for creating a Server.
type ServerConfig struct {
	// Service handles the requests. Required.
	Service *Service

	// SocketPath is the Unix socket to listen on. Required.
	SocketPath string

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Server accepts connections on a Unix socket and dispatches wire
// requests to a Service.
type Server struct {
	service    *Service
	socketPath string
	logger     *slog.Logger
}

// NewServer builds a Server from the given configuration.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Service == nil {
		return nil, fmt.Errorf("ingest: Service is required")
	}
	if config.SocketPath == "" {
		return nil, fmt.Errorf("ingest: SocketPath is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service:    config.Service,
		socketPath: config.SocketPath,
		logger:     logger,
	}, nil
}

// Serve starts accepting connections and dispatches requests. Blocks
// until ctx is cancelled, then stops accepting new connections and
// waits for active handlers to complete.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("ingest socket listening", "path", s.socketPath)

	var activeConnections sync.WaitGroup

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		activeConnections.Add(1)
		go func() {
			defer activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	activeConnections.Wait()
	return nil
}

// handleConnection processes one client request on a connection. The
// request's action field routes it; the response is the action's
// result or an ErrorResponse.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	raw, err := ReadRawMessage(conn)
	if err != nil {
		// A client that connects and goes away without a full request
		// is not worth an error response or a log line.
		if errors.Is(err, os.ErrDeadlineExceeded) || netutil.IsExpectedCloseError(err) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `json:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	switch header.Action {
	case ActionParse:
		s.handleParse(ctx, conn, raw)
	case ActionFetch:
		s.handleFetch(ctx, conn, raw)
	case ActionStats:
		s.writeResult(conn, s.service.Stats(ctx))
	case ActionClear:
		s.handleClear(ctx, conn, raw)
	default:
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
	}
}

func (s *Server) handleParse(ctx context.Context, conn net.Conn, raw []byte) {
	var request ParseRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid parse request: %v", err))
		return
	}

	result, err := s.service.ParseDocument(ctx, &request)
	if err != nil {
		s.writeError(conn, err.Error())
		return
	}
	s.writeResult(conn, result)
}

func (s *Server) handleFetch(ctx context.Context, conn net.Conn, raw []byte) {
	var request FetchRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid fetch request: %v", err))
		return
	}
	if len(request.URLs) == 0 {
		s.writeError(conn, "missing required field: urls")
		return
	}

	opts := fetch.Options{Referer: request.Referer}
	if request.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(request.TimeoutSeconds) * time.Second
	}

	result, err := s.service.FetchResources(ctx, request.URLs, opts)
	if err != nil {
		s.writeError(conn, err.Error())
		return
	}
	s.writeResult(conn, result)
}

func (s *Server) handleClear(ctx context.Context, conn net.Conn, raw []byte) {
	var request ClearRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid clear request: %v", err))
		return
	}

	if err := s.service.ClearNamespace(ctx, request.Namespace); err != nil {
		s.writeError(conn, err.Error())
		return
	}
	s.writeResult(conn, ClearResponse{Namespace: request.Namespace})
}

func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := WriteMessage(conn, ErrorResponse{Error: message}); err != nil && !netutil.IsExpectedCloseError(err) {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *Server) writeResult(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := WriteMessage(conn, result); err != nil && !netutil.IsExpectedCloseError(err) {
		s.logger.Debug("failed to write result", "error", err)
	}
}
