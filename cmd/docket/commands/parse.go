// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/docket/cmd/docket/cli"
	"github.com/bureau-foundation/docket/lib/ingest"
)

type parseParams struct {
	cli.Connection
	cli.JSONOutput

	noCache    bool
	outputPath string
}

func parseCommand() *cli.Command {
	var params parseParams

	return &cli.Command{
		Name:    "parse",
		Summary: "Parse a document into Markdown",
		Description: `Parse a document into Markdown.

The converted Markdown goes to stdout (or to --output); a one-line
summary of the parse goes to stderr. Embedded resources (images,
attachments) are extracted, uploaded to the configured blob store,
and referenced from the Markdown by their content-addressed IDs.

Results are cached by content hash: parsing the same bytes twice
returns the stored result without re-running the converter.`,
		Usage: "docket parse <file> [flags]",
		Examples: []cli.Example{
			{
				Description: "Parse a Word document to stdout",
				Command:     "docket parse report.docx",
			},
			{
				Description: "Re-parse even if a cached result exists",
				Command:     "docket parse --no-cache report.docx",
			},
			{
				Description: "Emit the full result (text, resources, metadata) as JSON",
				Command:     "docket parse --json report.docx > report.json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("parse", pflag.ContinueOnError)
			params.Connection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			flagSet.BoolVar(&params.noCache, "no-cache", false, "reparse even when a cached result exists")
			flagSet.StringVarP(&params.outputPath, "output", "o", "", "write Markdown to this file instead of stdout")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one file argument, got %d", len(args))
			}
			path := args[0]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			ctx := context.Background()
			logger := cli.NewCommandLogger(params.Verbose)
			ingestor, cleanup, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := ingestor.Parse(ctx, &ingest.ParseRequest{
				Filename: filepath.Base(path),
				Data:     data,
				NoCache:  params.noCache,
			})
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}

			if params.outputPath != "" {
				if err := os.WriteFile(params.outputPath, []byte(result.Text), 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", params.outputPath, err)
				}
			} else {
				fmt.Print(result.Text)
				if !strings.HasSuffix(result.Text, "\n") {
					fmt.Println()
				}
			}

			// The summary goes to stderr so stdout stays pure Markdown.
			source := "parsed"
			if result.CacheHit {
				source = "cached"
			}
			fmt.Fprintf(os.Stderr, "%s: %s via %s, %d resources (%s)\n",
				filepath.Base(path), result.DocType, result.ParserName, len(result.Resources), source)
			return nil
		},
	}
}
