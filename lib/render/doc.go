// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package render writes client-side status lines to the terminal: notices
// in blue, success in green, errors in red, upload progress rewritten in
// place, and the daemon's StatusReport, BoardInfo and FastbootPresent
// frames.
//
// Text that originates from the daemon is passed through [Sanitize]
// before display so a misbehaving board farm cannot move the cursor or
// retitle the user's terminal through a status line. Console output is
// not sanitized; it goes straight to the terminal unmodified.
//
// While the console is in raw mode the terminal does not translate "\n"
// into a carriage return, so a [Printer] in raw mode ends lines with
// "\r\n".
package render
