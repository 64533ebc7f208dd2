// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework shared by sk8brd and
// sk8brd-cli.
//
// [Command] parses pflag flags, prints structured help with examples,
// and suggests the closest flag name when the user mistypes one
// (Levenshtein distance <= 3, see suggest.go).
//
// Errors returned from a command are classified into a [ToolError]
// category by [Classify], and each category has its own process exit
// code (see exit.go), so scripts driving sk8brd-cli can tell a refused
// key from a dropped connection without parsing text.
//
// [Options] binds the flags both front-ends share, merges them over the
// configuration file, and builds the session configuration and signing
// oracle. [NewCommandLogger] returns the slog logger every command uses.
package cli
