// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/docket/cmd/docket/cli"
	"github.com/bureau-foundation/docket/lib/fetch"
)

type fetchParams struct {
	cli.Connection
	cli.JSONOutput

	referer   string
	timeout   time.Duration
	outputDir string
}

func fetchCommand() *cli.Command {
	var params fetchParams

	return &cli.Command{
		Name:    "fetch",
		Summary: "Fetch remote URLs through the resource cache",
		Description: `Fetch one or more remote URLs.

Each URL is canonicalized, checked against the resource cache, and
downloaded only on a miss. The per-URL outcome is printed as a table;
failures go to stderr and make the command exit non-zero without
aborting the rest of the batch.

With --output-dir the fetched bodies are written to files named after
the server-reported filename, falling back to the resource ID.`,
		Usage: "docket fetch <url>... [flags]",
		Examples: []cli.Example{
			{
				Description: "Fetch a single URL",
				Command:     "docket fetch https://example.com/paper.pdf",
			},
			{
				Description: "Fetch embedded resources with the document as referer",
				Command:     "docket fetch --referer https://example.com/post https://cdn.example.com/img.png",
			},
			{
				Description: "Save the bodies into a directory",
				Command:     "docket fetch -o downloads/ https://example.com/a.png https://example.com/b.pdf",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
			params.Connection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			flagSet.StringVar(&params.referer, "referer", "", "Referer header for hosts without a rules-configured one")
			flagSet.DurationVar(&params.timeout, "timeout", 0, "batch deadline (default: service setting)")
			flagSet.StringVarP(&params.outputDir, "output-dir", "o", "", "write fetched bodies into this directory")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("expected at least one URL argument")
			}

			ctx := context.Background()
			logger := cli.NewCommandLogger(params.Verbose)
			ingestor, cleanup, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := ingestor.Fetch(ctx, args, fetch.Options{
				Referer: params.referer,
				Timeout: params.timeout,
			})
			if err != nil {
				return err
			}

			if params.outputDir != "" {
				if err := writeBodies(params.outputDir, result); err != nil {
					return err
				}
			}

			if done, err := params.EmitJSON(result); done {
				if err != nil {
					return err
				}
				if len(result.Failed) > 0 {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}

			printFetchTable(result, args)

			for _, url := range args {
				if failure, ok := result.Failed[url]; ok {
					fmt.Fprintf(os.Stderr, "%s: %s: %s\n", url, failure.Class, failure.Message)
				}
			}
			if len(result.Failed) > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// printFetchTable prints one row per fetched URL, in input order.
func printFetchTable(result *fetch.Result, urls []string) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, url := range urls {
		fetched, ok := result.Resources[url]
		if !ok {
			continue
		}
		source := "fetched"
		if fetched.FromCache {
			source = "cache"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			url, fetched.ResourceID, fetched.FileType,
			humanize.IBytes(uint64(fetched.Size)), source)
	}
	writer.Flush()
}

// writeBodies saves each fetched body under dir. Duplicate filenames
// across distinct resources get the resource ID appended so nothing
// is silently overwritten.
func writeBodies(dir string, result *fetch.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	// Aliased URLs share one resource; write each resource once.
	byID := make(map[string]*fetch.Fetched)
	for _, fetched := range result.Resources {
		byID[fetched.ResourceID] = fetched
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	seen := make(map[string]bool)
	for _, id := range ids {
		fetched := byID[id]
		name := filepath.Base(fetched.Filename)
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = fetched.ResourceID
		}
		if seen[name] {
			name = fetched.ResourceID + "-" + name
		}
		seen[name] = true

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, fetched.Content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}
