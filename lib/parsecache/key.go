// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package parsecache

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Key derives the cache key for parsing content with the named parser
// at the given version and configuration. The layout is
//
//	sha256(content)[:16] + name + ":v" + version
//
// with ":" + md5(canonical JSON of config) appended when config is
// non-empty. Identical inputs always produce identical keys; changing
// any input changes the key, including adding a config to a
// previously config-free parse.
func Key(content []byte, parserName, parserVersion string, config map[string]any) string {
	contentHash := sha256.Sum256(content)
	key := hex.EncodeToString(contentHash[:])[:16] + parserName + ":v" + parserVersion
	if len(config) > 0 {
		configHash := md5.Sum(canonicalJSON(config))
		key += ":" + hex.EncodeToString(configHash[:])
	}
	return key
}

// canonicalJSON serializes a value deterministically: object keys are
// sorted at every nesting level, so two maps with the same contents
// always serialize to the same bytes regardless of iteration order.
func canonicalJSON(value any) []byte {
	switch typed := value.(type) {
	case nil:
		return []byte("null")
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		out := []byte("{")
		for index, key := range keys {
			if index > 0 {
				out = append(out, ',')
			}
			keyJSON, _ := json.Marshal(key)
			out = append(out, keyJSON...)
			out = append(out, ':')
			out = append(out, canonicalJSON(typed[key])...)
		}
		return append(out, '}')
	case []any:
		out := []byte("[")
		for index, element := range typed {
			if index > 0 {
				out = append(out, ',')
			}
			out = append(out, canonicalJSON(element)...)
		}
		return append(out, ']')
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			// Config trees come from decoded YAML or CBOR, so leaves
			// are always JSON-encodable; the fallback keeps Key total
			// for anything else.
			encoded, _ = json.Marshal(fmt.Sprint(value))
		}
		return encoded
	}
}
