// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"regexp"
	"strings"
)

// destinationPattern matches the tail of an inline image or link
// construct whose destination is exactly the given string: "](dest)",
// with optional angle brackets around the destination and an optional
// quoted title. Group 1 is everything before the destination, group 2
// everything after.
func destinationPattern(destination string) *regexp.Regexp {
	return regexp.MustCompile(
		`(\]\(\s*<?)` + regexp.QuoteMeta(destination) + `(>?(?:\s+"[^"]*")?\s*\))`,
	)
}

// constructPattern matches a whole inline image or link construct
// pointing at the given destination, including the leading "!" and the
// bracketed label. Labels with nested brackets are not matched; those
// constructs survive a strip.
func constructPattern(destination string) *regexp.Regexp {
	return regexp.MustCompile(
		`!?\[[^\]]*\]\(\s*<?` + regexp.QuoteMeta(destination) + `>?(?:\s+"[^"]*")?\s*\)`,
	)
}

// replaceDestination rewrites every image and link construct pointing
// at destination so it points at replacement instead. Labels, titles,
// and surrounding text are preserved. Replacing is idempotent: once
// rewritten, the old destination no longer appears and a second pass
// changes nothing.
func replaceDestination(markdown, destination, replacement string) string {
	escaped := strings.ReplaceAll(replacement, "$", "$$")
	return destinationPattern(destination).ReplaceAllString(markdown, "${1}"+escaped+"${2}")
}

// stripConstructs removes every image and link construct pointing at
// destination, label and all. Surrounding text and whitespace are left
// untouched.
func stripConstructs(markdown, destination string) string {
	return constructPattern(destination).ReplaceAllString(markdown, "")
}
