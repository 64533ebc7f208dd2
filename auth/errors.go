// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"fmt"
)

// ErrNoValidKey means the oracle offered no usable key, or the daemon
// turned down every key that was tried.
var ErrNoValidKey = errors.New("no valid key for authentication")

// RejectedError is the daemon's final refusal of the session.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("authentication rejected: %s", e.Reason)
}

// TransportError wraps a network failure during the handshake. The
// session cannot continue after one.
type TransportError struct {
	// Step names the handshake step that failed ("send hello",
	// "await challenge", ...).
	Step string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("authentication transport failure (%s): %v", e.Step, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
