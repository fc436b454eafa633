// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/docket/cmd/docket/cli"
)

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:    "cache",
		Summary: "Inspect and manage the docket cache",
		Subcommands: []*cli.Command{
			cacheStatsCommand(),
			cacheClearCommand(),
		},
	}
}

type cacheStatsParams struct {
	cli.Connection
	cli.JSONOutput
}

func cacheStatsCommand() *cli.Command {
	var params cacheStatsParams

	return &cli.Command{
		Name:    "stats",
		Summary: "Show cache and pipeline statistics",
		Description: `Show cache and pipeline statistics.

Reports per-namespace entry counts and sizes (logical versus stored
on disk after compression), parse and fetch counters since the
service started, and the registered document formats.`,
		Usage: "docket cache stats [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stats", pflag.ContinueOnError)
			params.Connection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}

			ctx := context.Background()
			logger := cli.NewCommandLogger(params.Verbose)
			ingestor, cleanup, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := ingestor.Stats(ctx)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(stats); done {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "NAMESPACE\tENTRIES\tSIZE\tON DISK\n")
			names := make([]string, 0, len(stats.Disk.Namespaces))
			for name := range stats.Disk.Namespaces {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				namespace := stats.Disk.Namespaces[name]
				fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n",
					name, namespace.Entries,
					humanize.IBytes(uint64(namespace.TotalBytes)),
					humanize.IBytes(uint64(namespace.StoredBytes)))
			}
			fmt.Fprintf(writer, "total\t%d\t%s\t%s\n",
				stats.Disk.Entries,
				humanize.IBytes(uint64(stats.Disk.TotalBytes)),
				humanize.IBytes(uint64(stats.Disk.StoredBytes)))
			writer.Flush()

			fmt.Printf("\nparse: %d hits, %d misses, %d writes (%s of source content absorbed)\n",
				stats.Parse.Hits, stats.Parse.Misses, stats.Parse.Writes,
				humanize.IBytes(stats.Parse.ContentBytes))
			fmt.Printf("fetch: %d hits, %d misses, %d fetched, %d failed\n",
				stats.Fetch.Hits, stats.Fetch.Misses, stats.Fetch.Fetched, stats.Fetch.Failed)
			if len(stats.Formats) > 0 {
				fmt.Printf("formats: %s\n", strings.Join(stats.Formats, " "))
			}
			return nil
		},
	}
}

type cacheClearParams struct {
	cli.Connection
	cli.JSONOutput
}

func cacheClearCommand() *cli.Command {
	var params cacheClearParams

	return &cli.Command{
		Name:    "clear",
		Summary: "Drop every entry in a cache namespace",
		Description: `Drop every entry in a cache namespace.

Known namespaces are "parsed" (document parse results) and "fetch"
(downloaded resources). Clearing is irreversible; subsequent parses
and fetches repopulate the cache.`,
		Usage: "docket cache clear <namespace> [flags]",
		Examples: []cli.Example{
			{
				Description: "Drop all cached parse results",
				Command:     "docket cache clear parsed",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clear", pflag.ContinueOnError)
			params.Connection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one namespace argument, got %d", len(args))
			}

			ctx := context.Background()
			logger := cli.NewCommandLogger(params.Verbose)
			ingestor, cleanup, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			cleared, err := ingestor.Clear(ctx, args[0])
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(cleared); done {
				return err
			}

			fmt.Printf("cleared namespace %s\n", cleared.Namespace)
			return nil
		},
	}
}
