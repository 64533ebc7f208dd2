// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"errors"
	"fmt"
)

// ErrIncomplete means the transfer ended without an UploadResult: the
// connection dropped, a write failed, or the daemon stopped replying.
var ErrIncomplete = errors.New("upload incomplete")

// RejectedError is an UploadResult reporting failure.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "upload rejected by daemon"
	}
	return fmt.Sprintf("upload rejected by daemon: %s", e.Message)
}
