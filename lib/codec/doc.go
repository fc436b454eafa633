// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec centralizes CBOR encoding configuration.
//
// All persistent and wire serialization in docket goes through this
// package: cached parse results, cached fetch payloads, and the
// request/response frames of the ingest service protocol. Encoding is
// Core Deterministic (RFC 8949 §4.2), so equal values always produce
// equal bytes regardless of process or platform.
//
// Consumers import lib/codec rather than the underlying CBOR library;
// the Encoder, Decoder, and RawMessage aliases exist so no other
// package needs the direct dependency.
package codec
