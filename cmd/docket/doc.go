// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Docket is the CLI for the docket document ingestion service. It
// provides subcommands for parsing documents into Markdown (parse),
// fetching remote URLs through the resource cache (fetch), and
// inspecting or clearing the caches (cache stats, cache clear).
// Commands talk to a running docket-service over its Unix socket, or
// run the pipeline in-process with --local.
package main
