// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for docket
// commands.
//
// Configuration is loaded from a single file specified by a --config
// flag (via [LoadFile]) or resolved by [Load]: the DOCKET_CONFIG
// environment variable first, then $XDG_CONFIG_HOME/docket/config.yaml
// when a file exists there, then built-in defaults. docket runs with
// no configuration at all; a path that is configured but unreadable is
// an error, never a silent fallback.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. The environment itself comes from the
// file, or from DOCKET_ENV when the file does not set one.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${DOCKET_CACHE}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Cache, Archive, Upload, Fetch, Service
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other docket packages.
package config
