// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/sk8brd/sk8brd/console"
	"github.com/sk8brd/sk8brd/protocol"
)

// InteractiveOptions configures RunInteractive.
type InteractiveOptions struct {
	// Image is the boot image to upload before the console opens. Nil
	// skips the upload phase.
	Image []byte

	Upload UploadOptions

	// Console carries the terminal side: Input, Output, Status and the
	// Dispatcher.
	Console console.Config

	// PowerCycle queues PowerOff then PowerOn ahead of any keystroke.
	PowerCycle bool

	// PowerOffOnExit queues PowerOff after Quit.
	PowerOffOnExit bool
}

// RunInteractive connects, authenticates, optionally uploads, and runs
// the console until it ends. The session is Closed or Failed on return.
func RunInteractive(ctx context.Context, s *Session, options InteractiveOptions) (console.Outcome, error) {
	defer s.Close()
	if err := s.Connect(ctx); err != nil {
		return 0, err
	}
	if _, err := s.Authenticate(ctx); err != nil {
		return 0, err
	}
	if options.Image != nil {
		if _, err := s.Upload(ctx, options.Image, options.Upload); err != nil {
			return 0, err
		}
	}
	if err := interrupted(ctx, s); err != nil {
		return 0, err
	}

	config := options.Console
	if options.PowerCycle {
		config.Startup = append(config.Startup,
			protocol.Control(protocol.TypePowerOff),
			protocol.Control(protocol.TypePowerOn))
	}
	if options.PowerOffOnExit {
		config.OnQuit = append(config.OnQuit, protocol.Control(protocol.TypePowerOff))
	}
	return s.Interact(ctx, config)
}

// BatchOptions configures RunBatch.
type BatchOptions struct {
	// Image is the boot image. Nil authenticates and exits.
	Image []byte

	Upload UploadOptions
}

// RunBatch connects, authenticates, uploads the image if one is given,
// and closes without entering Interactive.
func RunBatch(ctx context.Context, s *Session, options BatchOptions) error {
	defer s.Close()
	if err := s.Connect(ctx); err != nil {
		return err
	}
	if _, err := s.Authenticate(ctx); err != nil {
		return err
	}
	if options.Image != nil {
		if _, err := s.Upload(ctx, options.Image, options.Upload); err != nil {
			return err
		}
	}
	return nil
}

// RunListBoards connects, authenticates and returns the daemon's board
// list.
func RunListBoards(ctx context.Context, s *Session) ([]string, error) {
	defer s.Close()
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	if _, err := s.Authenticate(ctx); err != nil {
		return nil, err
	}
	return s.ListBoards(ctx)
}

// interrupted fails the session if ctx ended between phases.
func interrupted(ctx context.Context, s *Session) error {
	if ctx.Err() == nil {
		return nil
	}
	return s.Fail(context.Cause(ctx))
}
