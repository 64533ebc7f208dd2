// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// Reader is the inbound half of a connection. Exactly one goroutine may
// call Next at a time; the type does no locking of its own.
type Reader struct {
	source *bufio.Reader
}

// NewReader wraps r. Reads are buffered so that small console frames do
// not cost a syscall each.
func NewReader(r io.Reader) *Reader {
	return &Reader{source: bufio.NewReaderSize(r, headerLength+MaxPayloadLength)}
}

// Next blocks until a complete frame is available, the stream ends, or
// the stream turns out to be malformed.
func (r *Reader) Next() (Frame, error) {
	return ReadFrame(r.source)
}

// Writer is the outbound half of a connection. Send is safe to call from
// multiple goroutines, but ordering between callers is only defined when a
// single goroutine owns the writer, which is how the console multiplexer
// uses it.
type Writer struct {
	mu     sync.Mutex
	sink   io.Writer
	broken error
	buffer []byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{sink: w}
}

// Send encodes frame and writes it in one call. A failed write poisons
// the writer: the peer may have received part of the frame and there is
// no way to resynchronize, so every later Send fails with ErrWriterBroken.
func (w *Writer) Send(frame Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken != nil {
		return fmt.Errorf("%w: %v", ErrWriterBroken, w.broken)
	}

	encoded, err := AppendFrame(w.buffer[:0], frame)
	if err != nil {
		// Nothing reached the wire; the stream is still intact.
		return err
	}
	w.buffer = encoded

	written, err := w.sink.Write(encoded)
	if err == nil && written != len(encoded) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.broken = err
		return fmt.Errorf("write %s frame: %w", frame.Type, err)
	}
	return nil
}

// Conn pairs a Reader and Writer over one net.Conn and adds per-reply
// deadlines for the request/response phases (authentication, upload).
// During the console phase the multiplexer takes the two halves apart and
// gives each to its own goroutine.
type Conn struct {
	conn   net.Conn
	reader *Reader
	writer *Writer

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:   conn,
		reader: NewReader(conn),
		writer: NewWriter(conn),
	}
}

// Reader returns the inbound half.
func (c *Conn) Reader() *Reader { return c.reader }

// Writer returns the outbound half.
func (c *Conn) Writer() *Writer { return c.writer }

// RemoteAddr returns the daemon's address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Send writes one frame.
func (c *Conn) Send(frame Frame) error {
	return c.writer.Send(frame)
}

// Recv blocks until the next frame arrives with no deadline.
func (c *Conn) Recv() (Frame, error) {
	return c.reader.Next()
}

// RecvWithin waits at most timeout for the next frame. A zero timeout
// waits indefinitely. Exceeding the deadline yields ErrTimeout; the
// deadline is cleared again before returning so later reads are not
// affected.
func (c *Conn) RecvWithin(timeout time.Duration) (Frame, error) {
	if timeout <= 0 {
		return c.reader.Next()
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Frame{}, fmt.Errorf("set read deadline: %w", err)
	}
	frame, err := c.reader.Next()
	c.conn.SetReadDeadline(time.Time{})
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return Frame{}, fmt.Errorf("%w after %v: %w", ErrTimeout, timeout, err)
	}
	return frame, err
}

// CloseWrite half-closes the outbound direction when the transport
// supports it, letting the daemon observe a clean end of input while
// replies can still be read.
func (c *Conn) CloseWrite() error {
	if halfCloser, ok := c.conn.(interface{ CloseWrite() error }); ok {
		return halfCloser.CloseWrite()
	}
	return nil
}

// Close closes the underlying connection. Safe to call more than once;
// blocked Recv and Send calls return with an error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
