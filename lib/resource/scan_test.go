// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"reflect"
	"testing"
)

func TestScanDestinations(t *testing.T) {
	markdown := []byte(`# Report

Intro with an ![inline image](figure1.png) and a [data link](data/table.csv).

![again](figure1.png)

See also [the site](https://example.com/page) and ![shot](shots/screen%201.png).
`)
	got := scanDestinations(markdown)
	want := []string{
		"figure1.png",
		"data/table.csv",
		"https://example.com/page",
		"shots/screen%201.png",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("scanDestinations = %q, want %q", got, want)
	}
}

func TestScanDestinationsEmpty(t *testing.T) {
	if got := scanDestinations(nil); got != nil {
		t.Errorf("scanDestinations(nil) = %q, want nil", got)
	}
	if got := scanDestinations([]byte("plain text, no constructs")); got != nil {
		t.Errorf("scanDestinations(plain) = %q, want nil", got)
	}
}

func TestNormalizeDestination(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"figure1.png", "figure1.png"},
		{"./figure1.png", "figure1.png"},
		{"images/../figure1.png", "figure1.png"},
		{"shots/screen%201.png", "shots/screen 1.png"},
		{"/tmp/doc/figure1.png", "/tmp/doc/figure1.png"},
	}
	for _, test := range tests {
		if got := normalizeDestination(test.in); got != test.want {
			t.Errorf("normalizeDestination(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestMatchDestinations(t *testing.T) {
	resources := []Local{
		{Filename: "figure1.png", Path: "/work/doc/figure1.png"},
		{Filename: "table.csv", Path: "/work/doc/data/table.csv"},
	}
	destinations := []string{
		"figure1.png",           // bare filename -> resource 0
		"./figure1.png",         // dot-relative -> resource 0
		"/work/doc/figure1.png", // absolute path -> resource 0
		"data/table.csv",        // subdirectory suffix -> resource 1
		"https://example.com/x", // remote, no match
	}

	matched := matchDestinations(destinations, resources)

	want0 := []string{"figure1.png", "./figure1.png", "/work/doc/figure1.png"}
	if !reflect.DeepEqual(matched[0], want0) {
		t.Errorf("matched[0] = %q, want %q", matched[0], want0)
	}
	want1 := []string{"data/table.csv"}
	if !reflect.DeepEqual(matched[1], want1) {
		t.Errorf("matched[1] = %q, want %q", matched[1], want1)
	}
}

func TestMatchDestinationsAmbiguousSuffix(t *testing.T) {
	// Two resources share a basename; a subdirectory reference that
	// fits both stays unassigned, exact references still resolve.
	resources := []Local{
		{Filename: "chart.png", Path: "/work/a/chart.png"},
		{Filename: "chart.png", Path: "/work/b/chart.png"},
	}
	matched := matchDestinations([]string{"sub/chart.png", "/work/b/chart.png"}, resources)

	if len(matched[0]) != 0 {
		t.Errorf("matched[0] = %q, want none", matched[0])
	}
	if want := []string{"/work/b/chart.png"}; !reflect.DeepEqual(matched[1], want) {
		t.Errorf("matched[1] = %q, want %q", matched[1], want)
	}
}
