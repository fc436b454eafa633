// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// Tracking parameters stripped during URL canonicalization. Exact names
// only; prefix families live in defaultTrackingPrefixes.
var defaultTrackingParams = []string{
	"fbclid", "gclid", "gclsrc", "dclid", "wbraid", "gbraid",
	"msclkid", "twclid", "igshid", "yclid",
	"mc_cid", "mc_eid", "_hsenc", "_hsmi",
	"vero_id", "wickedid", "s_kwcid",
	"ref_src", "ref_url", "spm",
}

// Prefix families: any parameter starting with one of these is tracking
// noise. Covers utm_source, utm_campaign, mtm_kwd, pk_campaign, and so on.
var defaultTrackingPrefixes = []string{"utm_", "mtm_", "pk_"}

// Extensions the ingestion pipeline can do something with. URLs whose
// path carries an extension outside this set are rejected before any
// network traffic, and fetched content whose served type maps outside
// it is rejected after.
var defaultAllowedExtensions = []string{
	".pdf", ".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx",
	".odt", ".odp", ".ods", ".epub", ".rtf",
	".md", ".markdown", ".txt", ".rst", ".html", ".htm",
	".xml", ".json", ".csv", ".tsv",
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff",
	".zip", ".tar", ".gz", ".tgz", ".bz2", ".zst",
}

// Rules tunes URL canonicalization and fetch filtering. The zero value
// plus a compile() call yields the built-in defaults; rules files extend
// or replace them per field. Compiled rules are read-only and safe for
// concurrent use.
type Rules struct {
	// AllowedExtensions replaces the default allow-list when non-empty.
	// Entries are normalized to lowercase with a leading dot.
	AllowedExtensions []string `json:"allowed_extensions"`

	// ExtraTrackingParams extends the built-in tracking parameter set.
	ExtraTrackingParams []string `json:"extra_tracking_params"`

	// BlockedHosts lists hosts that are never fetched from.
	BlockedHosts []string `json:"blocked_hosts"`

	// Referers maps a host to the Referer header its CDN requires.
	Referers map[string]string `json:"referers"`

	trackingExact    map[string]bool
	trackingPrefixes []string
	allowed          map[string]bool
	blocked          map[string]bool
}

// DefaultRules returns the compiled built-in rules.
func DefaultRules() *Rules {
	rules := &Rules{}
	rules.compile()
	return rules
}

// ParseRules strips JSONC comments and trailing commas from data, then
// unmarshals and compiles the result. The input format is plain JSON
// extended with // line comments, /* block comments */, and trailing
// commas.
func ParseRules(data []byte) (*Rules, error) {
	stripped := jsonc.ToJSON(data)

	var rules Rules
	if err := json.Unmarshal(stripped, &rules); err != nil {
		return nil, fmt.Errorf("parsing fetch rules: %w", err)
	}
	rules.compile()
	return &rules, nil
}

// LoadRules reads a JSONC rules file from disk and parses it.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

func (r *Rules) compile() {
	r.trackingExact = make(map[string]bool, len(defaultTrackingParams)+len(r.ExtraTrackingParams))
	for _, name := range defaultTrackingParams {
		r.trackingExact[name] = true
	}
	for _, name := range r.ExtraTrackingParams {
		r.trackingExact[strings.ToLower(name)] = true
	}
	r.trackingPrefixes = defaultTrackingPrefixes

	allowed := r.AllowedExtensions
	if len(allowed) == 0 {
		allowed = defaultAllowedExtensions
	}
	r.allowed = make(map[string]bool, len(allowed))
	for _, extension := range allowed {
		extension = strings.ToLower(extension)
		if !strings.HasPrefix(extension, ".") {
			extension = "." + extension
		}
		r.allowed[extension] = true
	}

	r.blocked = make(map[string]bool, len(r.BlockedHosts))
	for _, host := range r.BlockedHosts {
		r.blocked[strings.ToLower(host)] = true
	}
}

// TrackingParam reports whether the named query parameter is tracking
// noise to strip during canonicalization.
func (r *Rules) TrackingParam(name string) bool {
	name = strings.ToLower(name)
	if r.trackingExact[name] {
		return true
	}
	for _, prefix := range r.trackingPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// AllowedExtension reports whether content with the given extension
// (leading dot, any case) is worth fetching. The empty extension is
// allowed: an extensionless URL cannot be classified until its content
// type is known.
func (r *Rules) AllowedExtension(extension string) bool {
	if extension == "" {
		return true
	}
	return r.allowed[strings.ToLower(extension)]
}

// BlockedHost reports whether the host is on the block list.
func (r *Rules) BlockedHost(host string) bool {
	return r.blocked[strings.ToLower(host)]
}

// RefererFor returns the Referer header configured for the host, or the
// empty string.
func (r *Rules) RefererFor(host string) string {
	return r.Referers[strings.ToLower(host)]
}
