// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()

	for _, extension := range []string{".pdf", ".PNG", ".tar", ".md"} {
		if !rules.AllowedExtension(extension) {
			t.Errorf("AllowedExtension(%q) = false, want true", extension)
		}
	}
	for _, extension := range []string{".exe", ".dll", ".iso"} {
		if rules.AllowedExtension(extension) {
			t.Errorf("AllowedExtension(%q) = true, want false", extension)
		}
	}
	if !rules.AllowedExtension("") {
		t.Error("AllowedExtension(\"\") = false, want true for extensionless URLs")
	}

	for _, name := range []string{"utm_source", "UTM_CAMPAIGN", "fbclid", "mtm_kwd"} {
		if !rules.TrackingParam(name) {
			t.Errorf("TrackingParam(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"page", "id", "q"} {
		if rules.TrackingParam(name) {
			t.Errorf("TrackingParam(%q) = true, want false", name)
		}
	}

	if rules.BlockedHost("example.com") {
		t.Error("BlockedHost(example.com) = true with no block list")
	}
	if referer := rules.RefererFor("cdn.example.com"); referer != "" {
		t.Errorf("RefererFor = %q, want empty", referer)
	}
}

func TestParseRules(t *testing.T) {
	data := []byte(`{
		// Comments and trailing commas are fine.
		"allowed_extensions": ["pdf", ".PNG",],
		"extra_tracking_params": ["session_id"],
		"blocked_hosts": ["Internal.Corp"],
		"referers": {
			"cdn.example.com": "https://example.com/",
		},
	}`)
	rules, err := ParseRules(data)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}

	// A non-empty allow-list replaces the defaults; entries normalize
	// to lowercase dotted form.
	if !rules.AllowedExtension(".pdf") || !rules.AllowedExtension(".png") {
		t.Error("listed extensions not allowed")
	}
	if rules.AllowedExtension(".zip") {
		t.Error("AllowedExtension(.zip) = true, want false once the list is replaced")
	}

	if !rules.TrackingParam("session_id") {
		t.Error("TrackingParam(session_id) = false, want true")
	}
	if !rules.TrackingParam("utm_source") {
		t.Error("TrackingParam(utm_source) = false, defaults must survive extension")
	}

	if !rules.BlockedHost("internal.corp") || !rules.BlockedHost("INTERNAL.CORP") {
		t.Error("blocked host lookup is not case-insensitive")
	}

	if referer := rules.RefererFor("cdn.example.com"); referer != "https://example.com/" {
		t.Errorf("RefererFor = %q, want configured referer", referer)
	}
}

func TestParseRulesMalformed(t *testing.T) {
	if _, err := ParseRules([]byte(`{"allowed_extensions": 42}`)); err == nil {
		t.Error("ParseRules accepted a malformed document")
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.jsonc")
	content := []byte(`{
		// local overrides
		"blocked_hosts": ["tracker.example"],
	}`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if !rules.BlockedHost("tracker.example") {
		t.Error("BlockedHost(tracker.example) = false after loading")
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "absent.jsonc")); err == nil {
		t.Error("LoadRules succeeded on a missing file")
	}
}
