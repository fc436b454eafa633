// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bureau-foundation/docket/lib/codec"
	"github.com/bureau-foundation/docket/lib/resource"
)

// Wire layout, both directions:
//
//	[4-byte big-endian length][CBOR message]
//
// Every connection carries exactly one request and one response. The
// request is a CBOR map whose "action" field routes it; the response
// is either the action's result type or an ErrorResponse.

// MaxMessageSize caps one length-prefixed wire message. Parse requests
// carry the document content inline, so the cap tracks the largest
// container the archive engine accepts rather than the small-header
// limit a metadata-only protocol would use.
const MaxMessageSize = 256 << 20

// Wire actions.
const (
	ActionParse = "parse"
	ActionFetch = "fetch"
	ActionStats = "stats"
	ActionClear = "clear"
)

// --- Protocol types ---
//
// Each message struct carries cbor tags for the wire encoding; json
// tags serve as fallback for the CBOR library and for debugging
// output.

// ErrorResponse is sent by the service when a request fails. The
// client surfaces the Error string as a ServiceError.
type ErrorResponse struct {
	Error string `cbor:"error,omitempty" json:"error,omitempty"`
}

// ParseRequest asks the service to parse one document. Data holds the
// full document content; Filename selects the converter by extension.
type ParseRequest struct {
	Action   string `cbor:"action,omitempty" json:"action,omitempty"`
	Filename string `cbor:"filename" json:"filename"`
	Data     []byte `cbor:"data" json:"data"`

	// ParserConfig is converter-specific tuning. It participates in
	// the cache key, so the same document with a different config
	// parses fresh.
	ParserConfig map[string]any `cbor:"parser_config,omitempty" json:"parser_config,omitempty"`

	// NoCache skips the cache lookup and forces a fresh parse. The
	// fresh result still replaces the cached one.
	NoCache bool `cbor:"no_cache,omitempty" json:"no_cache,omitempty"`
}

// ParseResult is a finished parse: normalized Markdown with embedded
// resource references rewritten to their uploaded locations.
type ParseResult struct {
	Text          string                `cbor:"text" json:"text"`
	Resources     []resource.Descriptor `cbor:"resources,omitempty" json:"resources,omitempty"`
	Metadata      map[string]any        `cbor:"metadata,omitempty" json:"metadata,omitempty"`
	DocType       string                `cbor:"doc_type" json:"doc_type"`
	ParserName    string                `cbor:"parser_name" json:"parser_name"`
	ParserVersion string                `cbor:"parser_version" json:"parser_version"`
	CacheHit      bool                  `cbor:"cache_hit" json:"cache_hit"`
}

// FetchRequest asks the service to retrieve a batch of URLs. The
// response is a fetch.Result keyed by the input URLs.
type FetchRequest struct {
	Action string   `cbor:"action,omitempty" json:"action,omitempty"`
	URLs   []string `cbor:"urls" json:"urls"`

	// Referer is sent for URLs whose host has no rules-configured
	// referer.
	Referer string `cbor:"referer,omitempty" json:"referer,omitempty"`

	// TimeoutSeconds overrides the service's default batch deadline.
	TimeoutSeconds int64 `cbor:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// StatsRequest asks for a ServiceStats snapshot.
type StatsRequest struct {
	Action string `cbor:"action,omitempty" json:"action,omitempty"`
}

// ClearRequest asks the service to drop every cache entry in one
// namespace.
type ClearRequest struct {
	Action    string `cbor:"action,omitempty" json:"action,omitempty"`
	Namespace string `cbor:"namespace" json:"namespace"`
}

// ClearResponse confirms a clear.
type ClearResponse struct {
	Namespace string `cbor:"namespace" json:"namespace"`
}

// --- Framing ---

// WriteMessage encodes message as CBOR and writes it with a 4-byte
// big-endian length prefix.
func WriteMessage(w io.Writer, message any) error {
	data, err := codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message size %d exceeds maximum %d", len(data), MaxMessageSize)
	}
	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(data)))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("writing message length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	return nil
}

// ReadRawMessage reads one length-prefixed message and returns the
// undecoded CBOR bytes. Callers that route on the action field decode
// twice: once into the routing header, once into the action's request
// type. Rejects messages larger than MaxMessageSize.
func ReadRawMessage(r io.Reader) ([]byte, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return nil, fmt.Errorf("reading message length: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("message size %d exceeds maximum %d", length, MaxMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}
	return data, nil
}

// ReadMessage reads a length-prefixed CBOR message and decodes it into
// result.
func ReadMessage(r io.Reader, result any) error {
	raw, err := ReadRawMessage(r)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}
