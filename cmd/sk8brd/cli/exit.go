// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/sk8brd/sk8brd/auth"
	"github.com/sk8brd/sk8brd/lib/netutil"
	"github.com/sk8brd/sk8brd/protocol"
	"github.com/sk8brd/sk8brd/session"
	"github.com/sk8brd/sk8brd/upload"
)

// Process exit codes.
const (
	ExitClosed      = 0
	ExitInternal    = 1
	ExitValidation  = 2
	ExitTransport   = 3
	ExitProtocol    = 4
	ExitAuth        = 5
	ExitUpload      = 6
	ExitInterrupted = 130
)

// ExitCode returns the process exit code for the category.
func (c ErrorCategory) ExitCode() int {
	switch c {
	case CategoryValidation:
		return ExitValidation
	case CategoryTransport:
		return ExitTransport
	case CategoryProtocol:
		return ExitProtocol
	case CategoryAuth:
		return ExitAuth
	case CategoryUpload:
		return ExitUpload
	case CategoryInterrupted:
		return ExitInterrupted
	default:
		return ExitInternal
	}
}

// ExitError signals a non-zero exit code without printing an extra
// error message; the command has already written its own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Classify returns err as a ToolError, deriving the category from the
// session, auth, upload and protocol errors in its chain when it is not
// one already. A nil err yields nil.
func Classify(err error) *ToolError {
	if err == nil {
		return nil
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}

	var (
		authRejected   *auth.RejectedError
		uploadRejected *upload.RejectedError
		transportErr   *auth.TransportError
		opErr          *net.OpError
	)
	switch {
	case errors.Is(err, session.ErrInterrupted):
		return &ToolError{Category: CategoryInterrupted, Err: err}

	case errors.Is(err, auth.ErrNoValidKey):
		return &ToolError{Category: CategoryAuth, Err: err,
			Hint: "Load a key the farm accepts into ssh-agent (ssh-add), or set key.identity_file in the config."}
	case errors.As(err, &authRejected):
		return &ToolError{Category: CategoryAuth, Err: err}

	// Upload failures are checked before transport ones: an incomplete
	// upload usually wraps the connection error that ended it.
	case errors.Is(err, upload.ErrIncomplete), errors.As(err, &uploadRejected):
		return &ToolError{Category: CategoryUpload, Err: err}

	case errors.Is(err, protocol.ErrMalformed),
		errors.Is(err, protocol.ErrUnknownType),
		errors.Is(err, protocol.ErrUnexpectedFrame),
		errors.Is(err, protocol.ErrPayloadTooLarge):
		return &ToolError{Category: CategoryProtocol, Err: err,
			Hint: "The daemon may speak a different protocol version."}

	case netutil.IsRefused(err):
		return &ToolError{Category: CategoryTransport, Err: err,
			Hint: fmt.Sprintf("Check the farm host and port (default %s).", session.DefaultPort)}
	case errors.Is(err, protocol.ErrConnectionClosed),
		errors.Is(err, protocol.ErrTimeout),
		errors.Is(err, protocol.ErrWriterBroken),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &transportErr),
		errors.As(err, &opErr),
		netutil.IsTimeout(err):
		return &ToolError{Category: CategoryTransport, Err: err}

	default:
		return &ToolError{Category: CategoryInternal, Err: err}
	}
}

// Report prints err to w (unless it is an ExitError) and returns the
// exit code for it. A nil err returns ExitClosed.
func Report(w io.Writer, name string, err error) int {
	if err == nil {
		return ExitClosed
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	toolErr := Classify(err)
	fmt.Fprintf(w, "%s: %v\n", name, toolErr)
	return toolErr.Category.ExitCode()
}
