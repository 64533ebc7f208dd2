// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates the structured logger for a command, writing
// to stderr at level. When stderr is a terminal it uses slog.TextHandler
// for human-readable output; when stderr is piped or redirected (CI,
// scripts) it uses slog.JSONHandler.
//
// The interactive client passes slog.LevelWarn so that routine log lines
// do not tear the raw-mode console; --verbose lowers it to Debug.
func NewCommandLogger(level slog.Leveler) *slog.Logger {
	return NewLogger(os.Stderr, level, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewLogger is NewCommandLogger with an explicit destination and
// terminal check.
func NewLogger(w io.Writer, level slog.Leveler, terminal bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if terminal {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}
