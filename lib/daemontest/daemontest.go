// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemontest provides a scripted stand-in for the board-farm
// daemon.
//
// [Listen] opens a loopback TCP listener; [Daemon.Serve] runs a script
// against the first accepted connection in a goroutine and reports the
// script's error on a channel. Scripts use [Peer] to expect and send
// frames. Loopback TCP (rather than net.Pipe) gives both directions
// kernel buffering, so a client that pipelines upload chunks while the
// script sends acknowledgements cannot deadlock the test.
//
// Peer methods return errors instead of calling t.Fatalf because scripts
// run outside the test goroutine.
package daemontest

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sk8brd/sk8brd/protocol"
)

// DefaultTimeout bounds every Expect so a misbehaving client fails the
// script instead of hanging the test.
const DefaultTimeout = 5 * time.Second

// Daemon is a listening fake daemon.
type Daemon struct {
	t        testing.TB
	listener net.Listener
}

// Listen starts a fake daemon on an ephemeral loopback port. The
// listener is closed when the test ends.
func Listen(t testing.TB) *Daemon {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("daemontest: listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	return &Daemon{t: t, listener: listener}
}

// Addr returns the host:port to dial.
func (d *Daemon) Addr() string {
	return d.listener.Addr().String()
}

// Close stops listening. Later dials to Addr are refused.
func (d *Daemon) Close() error {
	return d.listener.Close()
}

// Serve accepts one connection and runs script on it in a goroutine. The
// returned channel receives the script's result once, after the
// connection has been closed.
func (d *Daemon) Serve(script func(peer *Peer) error) <-chan error {
	result := make(chan error, 1)
	go func() {
		conn, err := d.listener.Accept()
		if err != nil {
			result <- fmt.Errorf("daemontest: accept: %w", err)
			return
		}
		peer := NewPeer(conn)
		err = script(peer)
		peer.Close()
		result <- err
	}()
	return result
}

// Pair returns a connected client net.Conn and the daemon-side Peer
// without running a script, for tests that drive the daemon side from
// the test goroutine.
func Pair(t testing.TB) (net.Conn, *Peer) {
	t.Helper()
	daemon := Listen(t)
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := daemon.listener.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()
	client, err := net.Dial("tcp", daemon.Addr())
	if err != nil {
		t.Fatalf("daemontest: dial: %v", err)
	}
	serverSide, ok := <-accepted
	if !ok {
		t.Fatalf("daemontest: accept failed")
	}
	peer := NewPeer(serverSide)
	t.Cleanup(func() {
		client.Close()
		peer.Close()
	})
	return client, peer
}

// Peer is the daemon end of one connection.
type Peer struct {
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
}

// NewPeer wraps the daemon side of a connection.
func NewPeer(conn net.Conn) *Peer {
	return &Peer{
		conn:   conn,
		reader: protocol.NewReader(conn),
		writer: protocol.NewWriter(conn),
	}
}

// Next reads the next client frame within DefaultTimeout.
func (p *Peer) Next() (protocol.Frame, error) {
	p.conn.SetReadDeadline(time.Now().Add(DefaultTimeout))
	defer p.conn.SetReadDeadline(time.Time{})
	return p.reader.Next()
}

// Expect reads the next client frame and checks its type.
func (p *Peer) Expect(want protocol.MessageType) (protocol.Frame, error) {
	frame, err := p.Next()
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("daemontest: expecting %s: %w", want, err)
	}
	if frame.Type != want {
		return frame, fmt.Errorf("daemontest: got %s, want %s", frame.Type, want)
	}
	return frame, nil
}

// ExpectDecode reads the next frame, checks its type and decodes its
// CBOR payload into v.
func (p *Peer) ExpectDecode(want protocol.MessageType, v any) error {
	frame, err := p.Expect(want)
	if err != nil {
		return err
	}
	return protocol.Decode(frame, want, v)
}

// ExpectClosed waits for the client to close its end.
func (p *Peer) ExpectClosed() error {
	frame, err := p.Next()
	if err == nil {
		return fmt.Errorf("daemontest: expected close, got %s", frame.Type)
	}
	if errors.Is(err, protocol.ErrConnectionClosed) {
		return nil
	}
	return fmt.Errorf("daemontest: expected close: %w", err)
}

// Send writes a frame to the client.
func (p *Peer) Send(frame protocol.Frame) error {
	return p.writer.Send(frame)
}

// SendPayload encodes v as a CBOR payload of the given type and sends it.
func (p *Peer) SendPayload(messageType protocol.MessageType, v any) error {
	frame, err := protocol.NewFrame(messageType, v)
	if err != nil {
		return err
	}
	return p.writer.Send(frame)
}

// SendRaw writes bytes straight to the connection, bypassing framing.
func (p *Peer) SendRaw(data []byte) error {
	_, err := p.conn.Write(data)
	return err
}

// Close closes the daemon side of the connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Handshake plays the daemon side of authentication: it expects Hello,
// issues a random challenge and verifies each Response against
// authorized. Keys not in authorized are rejected with Retry set; the
// first valid signature is accepted with accepted as the reply.
func (p *Peer) Handshake(authorized []ssh.PublicKey, accepted protocol.Accepted) (protocol.Hello, error) {
	var hello protocol.Hello
	if err := p.ExpectDecode(protocol.TypeHello, &hello); err != nil {
		return hello, err
	}
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return hello, err
	}
	if err := p.SendPayload(protocol.TypeChallenge, protocol.Challenge{Nonce: nonce}); err != nil {
		return hello, err
	}
	for {
		var response protocol.Response
		if err := p.ExpectDecode(protocol.TypeResponse, &response); err != nil {
			return hello, err
		}
		if VerifyResponse(response, nonce, authorized) {
			return hello, p.SendPayload(protocol.TypeAccepted, accepted)
		}
		if err := p.SendPayload(protocol.TypeRejected, protocol.Rejected{Reason: "unknown key", Retry: true}); err != nil {
			return hello, err
		}
	}
}

// VerifyResponse reports whether response carries a valid signature over
// nonce from one of the authorized keys.
func VerifyResponse(response protocol.Response, nonce []byte, authorized []ssh.PublicKey) bool {
	publicKey, err := ssh.ParsePublicKey(response.PublicKey)
	if err != nil {
		return false
	}
	for _, candidate := range authorized {
		if ssh.FingerprintSHA256(candidate) != ssh.FingerprintSHA256(publicKey) {
			continue
		}
		signature := &ssh.Signature{Format: response.Format, Blob: response.Signature}
		return publicKey.Verify(nonce, signature) == nil
	}
	return false
}
