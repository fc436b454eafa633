// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// scanParserInstance is initialized once and reused. The parser
// configuration never changes and the goldmark Parser is safe to
// share — parsing creates per-call state via Parse(reader).
var (
	scanParserInstance goldmark.Markdown
	scanParserOnce     sync.Once
)

func getScanParser() goldmark.Markdown {
	scanParserOnce.Do(func() {
		scanParserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return scanParserInstance
}

// scanDestinations parses markdown and returns the destination of
// every image and link construct, deduplicated, in document order.
// Destinations are returned exactly as written in the source so the
// rewrite step can locate them textually.
func scanDestinations(markdown []byte) []string {
	if len(markdown) == 0 {
		return nil
	}
	document := getScanParser().Parser().Parse(text.NewReader(markdown))

	var destinations []string
	seen := make(map[string]bool)
	record := func(destination []byte) {
		value := string(destination)
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		destinations = append(destinations, value)
	}

	ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch typed := node.(type) {
		case *ast.Image:
			record(typed.Destination)
		case *ast.Link:
			record(typed.Destination)
		}
		return ast.WalkContinue, nil
	})
	return destinations
}

// normalizeDestination reduces a markdown destination to a comparable
// path: percent-escapes decoded, "./" segments collapsed, no scheme
// handling (remote URLs never match a local resource and fall out
// naturally).
func normalizeDestination(destination string) string {
	value := destination
	if decoded, err := url.PathUnescape(value); err == nil {
		value = decoded
	}
	return path.Clean(value)
}

// matchDestinations assigns each scanned destination to at most one
// resource. A destination matches a resource when, after
// normalization, it equals the resource's on-disk path, equals its
// filename, or ends with "/"+filename (the document referring to the
// file through a subdirectory). Exact matches win over suffix
// matches; a suffix that fits several resources is ambiguous and
// stays unassigned.
func matchDestinations(destinations []string, resources []Local) map[int][]string {
	matched := make(map[int][]string)

	for _, destination := range destinations {
		normalized := normalizeDestination(destination)

		exact := -1
		var suffix []int
		for index := range resources {
			local := &resources[index]
			if normalized == local.Path || normalized == local.Filename {
				exact = index
				break
			}
			if local.Filename != "" && strings.HasSuffix(normalized, "/"+local.Filename) {
				suffix = append(suffix, index)
			}
		}

		switch {
		case exact >= 0:
			matched[exact] = append(matched[exact], destination)
		case len(suffix) == 1:
			matched[suffix[0]] = append(matched[suffix[0]], destination)
		}
	}
	return matched
}
