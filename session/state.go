// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
)

// State is a session lifecycle state.
type State uint8

const (
	Connecting State = iota
	Authenticating
	Uploading
	Interactive
	Closed
	Failed
)

var stateNames = [...]string{
	Connecting:     "connecting",
	Authenticating: "authenticating",
	Uploading:      "uploading",
	Interactive:    "interactive",
	Closed:         "closed",
	Failed:         "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// ErrInterrupted is the cancellation cause front-ends use for SIGINT and
// SIGTERM. A session canceled with it fails with this error.
var ErrInterrupted = errors.New("interrupted")

// Failure is the reason a session ended in Failed.
type Failure struct {
	// From is the state the session was in when it failed.
	From State
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("session failed while %s: %v", f.From, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// ErrInvalidState is returned when an operation is called in a state
// that does not allow it. It does not fail the session.
var ErrInvalidState = errors.New("operation not valid in current session state")
