// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ErrorCategory classifies command errors so that scripts can react
// (retry, fix input, fix keys) without parsing error text. Each category
// has its own exit code; see [ErrorCategory.ExitCode].
type ErrorCategory string

const (
	// CategoryValidation indicates bad input: unknown flags, a missing
	// farm address, an unparseable escape prefix, an unreadable image or
	// config file.
	CategoryValidation ErrorCategory = "validation"

	// CategoryTransport indicates the daemon could not be reached or the
	// connection dropped or timed out. Retrying may help.
	CategoryTransport ErrorCategory = "transport"

	// CategoryProtocol indicates the daemon sent something this client
	// does not accept: a malformed or unexpected frame.
	CategoryProtocol ErrorCategory = "protocol"

	// CategoryAuth indicates the daemon refused every key, or no key was
	// available.
	CategoryAuth ErrorCategory = "auth"

	// CategoryUpload indicates the image transfer was rejected or did not
	// complete.
	CategoryUpload ErrorCategory = "upload"

	// CategoryInterrupted indicates SIGINT or SIGTERM ended the session.
	CategoryInterrupted ErrorCategory = "interrupted"

	// CategoryInternal indicates an unexpected failure.
	CategoryInternal ErrorCategory = "internal"
)

// ToolError is a categorized error returned by commands. It wraps the
// underlying error, so errors.Is and errors.As see the full chain.
type ToolError struct {
	// Category classifies the error for exit-code selection.
	Category ErrorCategory

	// Err is the underlying error with the human-readable message.
	Err error

	// Hint is an optional next step, printed after the message.
	Hint string
}

// Error returns the message followed by the hint, if any.
func (e *ToolError) Error() string {
	if e.Hint == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n\n" + e.Hint
}

func (e *ToolError) Unwrap() error { return e.Err }

// WithHint sets Hint and returns the receiver for chaining.
func (e *ToolError) WithHint(hint string) *ToolError {
	e.Hint = hint
	return e
}

// Validation creates a validation error.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// Transport creates a transport error.
func Transport(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransport, Err: fmt.Errorf(format, args...)}
}

// Protocol creates a protocol error.
func Protocol(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryProtocol, Err: fmt.Errorf(format, args...)}
}

// Auth creates an authentication error.
func Auth(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryAuth, Err: fmt.Errorf(format, args...)}
}

// Upload creates an upload error.
func Upload(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryUpload, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}
