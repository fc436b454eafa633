// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest ties the document pipeline together: converter
// registry, parse result cache, resource upload pipeline, and remote
// fetch client behind one Service.
//
// ParseDocument is the main entry point. It routes a document to its
// converter, consults the parse cache, and on a miss converts the
// document in a per-call scratch directory, relocates embedded
// resources through the upload pipeline, and stores the finished
// result. Scratch files never outlive the call.
//
// The package also defines the service wire protocol: length-prefixed
// CBOR messages over a Unix socket, one request and one response per
// connection, with the actions parse, fetch, stats, and clear. Client
// is the caller side; the service binary owns the listener.
package ingest
