// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete docket CLI command tree. The
// docket binary imports this package; keeping the tree out of package
// main lets tests walk it without a build of the binary.
package commands

import (
	"fmt"

	"github.com/bureau-foundation/docket/cmd/docket/cli"
	"github.com/bureau-foundation/docket/lib/version"
)

// Root builds and returns the complete docket CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "docket",
		Description: `Docket: document ingestion toolkit.

Parse documents into Markdown, extract their embedded resources, and
fetch remote URLs, with content-addressed caching of every result.
Commands talk to a running docket-service over its Unix socket by
default; pass --local to run the full pipeline in-process instead.`,
		Subcommands: []*cli.Command{
			parseCommand(),
			fetchCommand(),
			cacheCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("docket %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Parse a document to Markdown on stdout",
				Command:     "docket parse report.docx",
			},
			{
				Description: "Parse without a running service, writing to a file",
				Command:     "docket parse --local -o report.md report.docx",
			},
			{
				Description: "Fetch two URLs and save the bodies",
				Command:     "docket fetch -o downloads/ https://example.com/a.png https://example.com/b.pdf",
			},
			{
				Description: "Show cache and pipeline statistics",
				Command:     "docket cache stats",
			},
			{
				Description: "Drop all cached parse results",
				Command:     "docket cache clear parsed",
			},
		},
	}
}
