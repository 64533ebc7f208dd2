// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package rawterm manages the local terminal for the interactive console:
// a scoped raw mode, a stdin reader that can be canceled when the session
// ends, and a signal-canceled context.
package rawterm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Enter puts f into raw mode and returns a function that restores the
// previous mode. Restore is idempotent. When f is not a terminal Enter
// does nothing and restore is a no-op, so piped input still works.
func Enter(f *os.File) (restore func() error, err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() error { return nil }, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("set terminal raw mode: %w", err)
	}
	var once sync.Once
	var restoreErr error
	return func() error {
		once.Do(func() { restoreErr = term.Restore(fd, state) })
		return restoreErr
	}, nil
}

// Input is a reader whose blocked Read can be abandoned with Cancel.
type Input interface {
	Read(p []byte) (int, error)
	Cancel() bool
	Close() error
}

// NewInput wraps f so that Cancel unblocks a pending Read, which then
// returns ErrCanceled.
func NewInput(f *os.File) (Input, error) {
	reader, err := cancelreader.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("cancelable input: %w", err)
	}
	return reader, nil
}

// ErrCanceled is returned by Read after Cancel.
var ErrCanceled = cancelreader.ErrCanceled

// IsCanceled reports whether err came from a canceled Input.
func IsCanceled(err error) bool {
	return errors.Is(err, cancelreader.ErrCanceled)
}

// SignalContext returns a context canceled with cause when the process
// receives SIGINT or SIGTERM. stop releases the signal handler; after it
// returns, signals take their default action again.
func SignalContext(parent context.Context, cause error) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancelCause(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-signals:
			cancel(cause)
		case <-done:
		}
	}()
	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(signals)
			close(done)
			cancel(context.Canceled)
		})
	}
}
