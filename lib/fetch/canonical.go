// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// CanonicalizeURL reduces a URL to its cache-key form using the default
// rules: the scheme and host are lowercased, the fragment is dropped,
// tracking query parameters are removed, and the remaining parameters
// are sorted by key and value. The result is a pure function of the
// input, and canonicalizing an already-canonical URL is the identity.
func CanonicalizeURL(raw string) (string, error) {
	return canonicalizeWith(DefaultRules(), raw)
}

func canonicalizeWith(rules *Rules, raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("fetch: invalid URL %q: %w", raw, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("fetch: unsupported URL scheme %q in %q", parsed.Scheme, raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("fetch: URL %q has no host", raw)
	}
	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)

	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.ForceQuery = false

	if parsed.RawQuery != "" {
		values, err := url.ParseQuery(parsed.RawQuery)
		if err != nil {
			return "", fmt.Errorf("fetch: invalid query in %q: %w", raw, err)
		}
		for key := range values {
			if rules.TrackingParam(key) {
				delete(values, key)
			}
		}
		for _, list := range values {
			slices.Sort(list)
		}
		// Encode sorts by key, so the output is fully ordered.
		parsed.RawQuery = values.Encode()
	}

	return parsed.String(), nil
}
