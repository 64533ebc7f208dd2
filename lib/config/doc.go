// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the sk8brd client configuration file.
//
// Configuration is loaded from a single file named by either the
// SK8BRD_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no ~/.config discovery and no search path:
// a client run without either uses [Default] and its command-line flags.
//
// Files ending in .json or .jsonc are comment-stripped and decoded as
// JSON; anything else is YAML. Both use the same field names.
//
// ${VAR} and ${VAR:-default} patterns are expanded in the image path
// (see [Expand]). No environment variable overrides a config value.
//
// Key exports:
//
//   - [Config] -- farm address, board, key, console and upload settings
//   - [Default] -- the built-in values every file is merged onto
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other sk8brd packages.
package config
