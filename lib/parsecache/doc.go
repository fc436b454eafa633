// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package parsecache caches finished parse results keyed by document
// content and parser identity.
//
// The key is a pure function of the input: the content hash, the
// parser's name and version, and the parser configuration. Parsing
// the same bytes with the same parser at the same version and the
// same settings therefore always lands on the same cache entry, and
// bumping a parser's version invalidates its old entries without
// touching anyone else's.
//
// Caching is strictly best-effort. Lookup misses on any problem and
// Store swallows every error; a broken cache slows parsing down but
// never breaks it. Cached results carry the post-upload resource
// descriptors, never parser-local temp paths, so a hit is valid long
// after the parse's working directory is gone.
package parsecache
