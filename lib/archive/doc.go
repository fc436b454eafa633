// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive unpacks untrusted compressed containers into a
// bounded, path-safe set of files.
//
// Every container passes four gates before its content is handed to
// the caller. The raw container size is checked first. Then the
// member index is read and the entry count and declared uncompressed
// total are checked before a single byte lands on disk, which is the
// defense against zip bombs that announce themselves honestly.
// During extraction each entry's resolved path must stay inside the
// extraction root; an entry that tries to escape is rejected on its
// own while well-formed siblings still extract. Finally the realized
// tree is re-walked and checked against the same ceilings, which
// catches containers whose declared index undersells what actually
// decompressed. A container that fails the final gate has its whole
// output tree deleted: callers never see partial output from a
// rejected archive.
//
// Violations surface as the sentinel errors ErrContainerTooLarge,
// ErrTooManyMembers, ErrExtractedSizeExceeded, ErrCorruptContainer,
// and ErrUnsupportedFormat. All are ordinary recoverable errors; the
// engine never panics on malformed input.
//
// Symbolic links, devices, and other non-regular entries are skipped
// entirely, so an extracted tree contains only directories and plain
// files and a later entry can never be redirected through a planted
// link.
package archive
