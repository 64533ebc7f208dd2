// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestIsExpectedCloseError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("read header: %w", io.EOF), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"closed", net.ErrClosed, true},
		{"epipe", &net.OpError{Op: "write", Err: os.NewSyscallError("write", unix.EPIPE)}, true},
		{"econnreset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", unix.ECONNRESET)}, true},
		{"econnrefused", unix.ECONNREFUSED, false},
		{"other", errors.New("frame too large"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if got := IsExpectedCloseError(test.err); got != test.want {
				t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	client.SetReadDeadline(time.Now().Add(time.Millisecond))
	_, err := client.Read(make([]byte, 1))
	if !IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false after deadline", err)
	}
	if IsTimeout(io.EOF) {
		t.Error("IsTimeout(EOF) = true")
	}
}

func TestIsRefused(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	address := listener.Addr().String()
	listener.Close()

	_, err = net.Dial("tcp", address)
	if err == nil {
		t.Skip("port was reused before dial")
	}
	if !IsRefused(err) {
		t.Errorf("IsRefused(%v) = false", err)
	}
}
