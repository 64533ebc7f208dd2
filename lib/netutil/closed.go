// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies network errors seen while tearing down a
// daemon connection.
package netutil

import (
	"errors"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, a locally closed connection, broken pipe, or
// connection reset.
//
// When the daemon drops the board it closes the whole socket rather than
// half-closing it, so the client's in-flight read or write sees
// ECONNRESET or EPIPE instead of EOF. All of these mean "remote closed"
// and are not reported as failures.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno == unix.EPIPE || errno == unix.ECONNRESET
	}
	return false
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsRefused reports whether a dial failed because nothing was listening.
func IsRefused(err error) bool {
	var errno unix.Errno
	return errors.As(err, &errno) && errno == unix.ECONNREFUSED
}
