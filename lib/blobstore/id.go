// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zeebo/blake3"
)

// idHexLength is the number of hash hex characters in a resource ID.
// 48 bits of content hash is plenty for a store that holds one
// deployment's documents, and keeps IDs short enough to read in
// rewritten markdown.
const idHexLength = 12

// ResourceID derives the stable storage identifier for a resource:
// "res-" + the first 12 hex characters of the content's BLAKE3 hash
// + the file extension. The extension comes from the filename when it
// has one, else from the declared content type, else from sniffing
// the bytes.
func ResourceID(data []byte, filename, contentType string) string {
	sum := blake3.Sum256(data)
	return "res-" + hex.EncodeToString(sum[:])[:idHexLength] + resourceExtension(data, filename, contentType)
}

// resourceExtension picks the extension for a resource ID, lowercased
// with its leading dot, or "" when nothing identifies the format.
func resourceExtension(data []byte, filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	if contentType != "" {
		if mtype := mimetype.Lookup(contentType); mtype != nil && mtype.Extension() != "" {
			return mtype.Extension()
		}
	}
	return mimetype.Detect(data).Extension()
}

// idShard returns the two shard directory names for a resource ID.
// Objects shard on the first two hash bytes, the same fan-out the
// content hex itself provides: res-a3f9... lives under a3/f9/.
func idShard(id string) (string, string, error) {
	digest, ok := strings.CutPrefix(id, "res-")
	if !ok || len(digest) < 4 {
		return "", "", fmt.Errorf("malformed resource id %q", id)
	}
	return digest[:2], digest[2:4], nil
}
