// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"parse", "", 5},
		{"", "fetch", 5},
		{"stats", "stats", 0},
		{"stast", "stats", 2},
		{"claer", "clear", 2},
		{"socket", "sockte", 2},
		{"parse", "fetch", 5},
	}

	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "parse"},
		{Name: "fetch"},
		{Name: "cache"},
	}

	if got := suggestCommand("prase", commands); got != "parse" {
		t.Errorf("suggestCommand(prase) = %q, want parse", got)
	}
	if got := suggestCommand("zzzzzzzzz", commands); got != "" {
		t.Errorf("suggestCommand(zzzzzzzzz) = %q, want no suggestion", got)
	}
}

func TestSuggestFlag(t *testing.T) {
	makeFlags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
		flagSet.String("referer", "", "referer URL")
		flagSet.StringP("output-dir", "o", "", "output directory")
		return flagSet
	}

	if got := suggestFlag([]string{"--referrer", "https://example.com"}, makeFlags()); got != "--referer" {
		t.Errorf("suggestFlag(--referrer) = %q, want --referer", got)
	}

	// Defined flags are skipped; only the unknown one is diagnosed.
	if got := suggestFlag([]string{"--referer", "x", "--output-dri", "y"}, makeFlags()); got != "--output-dir" {
		t.Errorf("suggestFlag(--output-dri) = %q, want --output-dir", got)
	}

	if got := suggestFlag([]string{"--nothing-close-at-all"}, makeFlags()); got != "" {
		t.Errorf("suggestFlag(distant) = %q, want no suggestion", got)
	}
}
