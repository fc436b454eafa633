// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import "testing"

func TestCanonicalizeURL(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "tracking stripped, rest kept",
			raw:  "https://x.example/doc.pdf?utm_source=a&b=2",
			want: "https://x.example/doc.pdf?b=2",
		},
		{
			name: "query sorted by key",
			raw:  "https://x.example/doc.pdf?b=2&a=1",
			want: "https://x.example/doc.pdf?a=1&b=2",
		},
		{
			name: "all parameters stripped drops the query entirely",
			raw:  "https://x.example/doc.pdf?utm_source=a&utm_medium=b",
			want: "https://x.example/doc.pdf",
		},
		{
			name: "fragment dropped",
			raw:  "https://x.example/page#section-3",
			want: "https://x.example/page",
		},
		{
			name: "scheme and host lowercased, path case kept",
			raw:  "HTTPS://Example.COM/Files/Doc.PDF",
			want: "https://example.com/Files/Doc.PDF",
		},
		{
			name: "click identifiers stripped",
			raw:  "https://x.example/p?fbclid=abc123&gclid=def&id=7",
			want: "https://x.example/p?id=7",
		},
		{
			name: "repeated values sorted",
			raw:  "https://x.example/p?tag=zebra&tag=apple",
			want: "https://x.example/p?tag=apple&tag=zebra",
		},
		{
			name: "no query untouched",
			raw:  "https://x.example/plain",
			want: "https://x.example/plain",
		},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			got, err := CanonicalizeURL(testCase.raw)
			if err != nil {
				t.Fatalf("CanonicalizeURL(%q): %v", testCase.raw, err)
			}
			if got != testCase.want {
				t.Errorf("CanonicalizeURL(%q) = %q, want %q", testCase.raw, got, testCase.want)
			}

			// Canonicalizing a canonical URL is the identity.
			again, err := CanonicalizeURL(got)
			if err != nil {
				t.Fatalf("CanonicalizeURL(%q): %v", got, err)
			}
			if again != got {
				t.Errorf("not idempotent: %q recanonicalized to %q", got, again)
			}
		})
	}
}

func TestCanonicalizeURLAliasesConverge(t *testing.T) {
	aliases := []string{
		"https://x.example/doc.pdf?utm_source=newsletter&b=2",
		"https://x.example/doc.pdf?b=2&utm_campaign=spring",
		"https://X.EXAMPLE/doc.pdf?b=2",
		"https://x.example/doc.pdf?b=2#page=4",
	}
	first, err := CanonicalizeURL(aliases[0])
	if err != nil {
		t.Fatalf("CanonicalizeURL: %v", err)
	}
	for _, alias := range aliases[1:] {
		got, err := CanonicalizeURL(alias)
		if err != nil {
			t.Fatalf("CanonicalizeURL(%q): %v", alias, err)
		}
		if got != first {
			t.Errorf("CanonicalizeURL(%q) = %q, want %q", alias, got, first)
		}
	}
}

func TestCanonicalizeURLInvalid(t *testing.T) {
	for _, raw := range []string{
		"://missing-scheme",
		"ftp://files.example/doc.pdf",
		"mailto:someone@example.com",
		"",
		"/relative/path.pdf",
	} {
		if _, err := CanonicalizeURL(raw); err == nil {
			t.Errorf("CanonicalizeURL(%q) succeeded, want error", raw)
		}
	}
}

func TestCanonicalizeURLExtraRules(t *testing.T) {
	rules, err := ParseRules([]byte(`{"extra_tracking_params": ["session_id"]}`))
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}

	got, err := canonicalizeWith(rules, "https://x.example/p?session_id=99&q=1")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if want := "https://x.example/p?q=1"; got != want {
		t.Errorf("canonicalize = %q, want %q", got, want)
	}

	// The default set still applies alongside the extras.
	got, err = canonicalizeWith(rules, "https://x.example/p?utm_source=a&q=1")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if want := "https://x.example/p?q=1"; got != want {
		t.Errorf("canonicalize = %q, want %q", got, want)
	}
}
