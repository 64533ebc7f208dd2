// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package console relays an interactive board console over the daemon
// connection.
//
// [Dispatcher] is the escape-prefix grammar: a two-state machine that
// splits local keystrokes into console bytes and [Command]s. The prefix
// (CTRL-A by default) followed by a bound key selects a command; followed
// by anything else, both bytes are forwarded unchanged.
//
// [Multiplexer] runs the console phase with three goroutines: a reader
// that owns the inbound half of the connection and writes board output to
// the display, a writer that owns the outbound half, and an input loop
// that feeds keystrokes through the Dispatcher. The input loop and the
// writer communicate through one bounded queue, so outbound frames leave
// in exactly the order they were produced and there is never more than
// one writer.
package console
