// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sk8brd/sk8brd/lib/daemontest"
	"github.com/sk8brd/sk8brd/lib/testutil"
	"github.com/sk8brd/sk8brd/protocol"
)

func generateSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(private)
	if err != nil {
		t.Fatalf("wrapping key: %v", err)
	}
	return signer
}

func dialConn(address string) (*protocol.Conn, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return protocol.NewConn(conn), nil
}

// startHandshake connects an Authenticator to a scripted daemon.
func startHandshake(t *testing.T, oracle SigningOracle, script func(*daemontest.Peer) error) (*Authenticator, <-chan error) {
	t.Helper()
	daemon := daemontest.Listen(t)
	result := daemon.Serve(script)
	conn, err := dialConn(daemon.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	authenticator := New(conn, oracle, nil)
	authenticator.ReplyTimeout = 2 * time.Second
	return authenticator, result
}

func TestAuthenticateAcceptsSecondKey(t *testing.T) {
	t.Parallel()

	unknown := generateSigner(t)
	authorized := generateSigner(t)
	oracle := NewSignerOracle(unknown, authorized)

	var hello protocol.Hello
	authenticator, result := startHandshake(t, oracle, func(peer *daemontest.Peer) error {
		var err error
		hello, err = peer.Handshake([]ssh.PublicKey{authorized.PublicKey()}, protocol.Accepted{
			Capabilities: []string{"upload-window"},
			ChunkSize:    4096,
			Window:       4,
		})
		return err
	})

	outcome, err := authenticator.Authenticate(context.Background(), protocol.Hello{
		User:  "alice",
		Board: "rb3",
	})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := testutil.RequireReceive(t, result, 5*time.Second, "daemon script"); err != nil {
		t.Fatalf("daemon script: %v", err)
	}

	if outcome.Key.ID != ssh.FingerprintSHA256(authorized.PublicKey()) {
		t.Errorf("accepted key = %s, want the authorized key", outcome.Key.ID)
	}
	if outcome.Accepted.ChunkSize != 4096 || outcome.Accepted.Window != 4 {
		t.Errorf("accepted = %+v", outcome.Accepted)
	}
	if hello.User != "alice" || hello.Board != "rb3" {
		t.Errorf("daemon saw hello %+v", hello)
	}
}

func TestAuthenticatePreferredKeyFirst(t *testing.T) {
	t.Parallel()

	first := generateSigner(t)
	preferred := generateSigner(t)
	oracle := NewSignerOracle(first, preferred)

	authenticator, result := startHandshake(t, oracle, func(peer *daemontest.Peer) error {
		if err := peer.ExpectDecode(protocol.TypeHello, &protocol.Hello{}); err != nil {
			return err
		}
		if err := peer.SendPayload(protocol.TypeChallenge, protocol.Challenge{Nonce: []byte("nonce")}); err != nil {
			return err
		}
		var response protocol.Response
		if err := peer.ExpectDecode(protocol.TypeResponse, &response); err != nil {
			return err
		}
		if want := ssh.FingerprintSHA256(preferred.PublicKey()); response.KeyID != want {
			return errors.New("first response used " + response.KeyID + ", want " + want)
		}
		return peer.SendPayload(protocol.TypeAccepted, protocol.Accepted{})
	})
	authenticator.PreferredKey = ssh.FingerprintSHA256(preferred.PublicKey())

	if _, err := authenticator.Authenticate(context.Background(), protocol.Hello{Board: "db845c"}); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := testutil.RequireReceive(t, result, 5*time.Second, "daemon script"); err != nil {
		t.Fatalf("daemon script: %v", err)
	}
}

func TestAuthenticateRejectedWithoutRetry(t *testing.T) {
	t.Parallel()

	oracle := NewSignerOracle(generateSigner(t), generateSigner(t))
	authenticator, result := startHandshake(t, oracle, func(peer *daemontest.Peer) error {
		if err := peer.ExpectDecode(protocol.TypeHello, &protocol.Hello{}); err != nil {
			return err
		}
		if err := peer.SendPayload(protocol.TypeChallenge, protocol.Challenge{Nonce: []byte("n")}); err != nil {
			return err
		}
		if _, err := peer.Expect(protocol.TypeResponse); err != nil {
			return err
		}
		if err := peer.SendPayload(protocol.TypeRejected, protocol.Rejected{Reason: "bad signature"}); err != nil {
			return err
		}
		// No second Response may follow a final rejection.
		return peer.ExpectClosed()
	})

	_, err := authenticator.Authenticate(context.Background(), protocol.Hello{Board: "rb3"})
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("got %v, want *RejectedError", err)
	}
	if rejected.Reason != "bad signature" {
		t.Errorf("reason = %q, want %q", rejected.Reason, "bad signature")
	}
	authenticator.transport.(interface{ Close() error }).Close()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "daemon script"); err != nil {
		t.Fatalf("daemon script: %v", err)
	}
}

func TestAuthenticateExhaustsKeys(t *testing.T) {
	t.Parallel()

	oracle := NewSignerOracle(generateSigner(t), generateSigner(t))
	authenticator, result := startHandshake(t, oracle, func(peer *daemontest.Peer) error {
		_, err := peer.Handshake(nil, protocol.Accepted{})
		if errors.Is(err, protocol.ErrConnectionClosed) {
			return nil
		}
		return err
	})

	_, err := authenticator.Authenticate(context.Background(), protocol.Hello{Board: "rb3"})
	if !errors.Is(err, ErrNoValidKey) {
		t.Fatalf("got %v, want ErrNoValidKey", err)
	}
	if !strings.Contains(err.Error(), "tried 2 keys") {
		t.Errorf("error %q does not report the attempt count", err)
	}
	authenticator.transport.(interface{ Close() error }).Close()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "daemon script"); err != nil {
		t.Fatalf("daemon script: %v", err)
	}
}

func TestAuthenticateNoKeys(t *testing.T) {
	t.Parallel()

	authenticator, result := startHandshake(t, NewSignerOracle(), func(peer *daemontest.Peer) error {
		if err := peer.ExpectDecode(protocol.TypeHello, &protocol.Hello{}); err != nil {
			return err
		}
		return peer.SendPayload(protocol.TypeChallenge, protocol.Challenge{Nonce: []byte("n")})
	})

	_, err := authenticator.Authenticate(context.Background(), protocol.Hello{})
	if !errors.Is(err, ErrNoValidKey) {
		t.Fatalf("got %v, want ErrNoValidKey", err)
	}
	if err := testutil.RequireReceive(t, result, 5*time.Second, "daemon script"); err != nil {
		t.Fatalf("daemon script: %v", err)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script func(*daemontest.Peer) error
		check  func(t *testing.T, err error)
	}{
		{
			name: "daemon closes before challenge",
			script: func(peer *daemontest.Peer) error {
				_, err := peer.Expect(protocol.TypeHello)
				return err
			},
			check: func(t *testing.T, err error) {
				var transportErr *TransportError
				if !errors.As(err, &transportErr) {
					t.Fatalf("got %v, want *TransportError", err)
				}
				if !errors.Is(err, protocol.ErrConnectionClosed) {
					t.Errorf("got %v, want ErrConnectionClosed in chain", err)
				}
			},
		},
		{
			name: "rejected before challenge",
			script: func(peer *daemontest.Peer) error {
				if _, err := peer.Expect(protocol.TypeHello); err != nil {
					return err
				}
				return peer.SendPayload(protocol.TypeRejected, protocol.Rejected{Reason: "no such board"})
			},
			check: func(t *testing.T, err error) {
				var rejected *RejectedError
				if !errors.As(err, &rejected) || rejected.Reason != "no such board" {
					t.Fatalf("got %v, want RejectedError(no such board)", err)
				}
			},
		},
		{
			name: "unexpected frame instead of challenge",
			script: func(peer *daemontest.Peer) error {
				if _, err := peer.Expect(protocol.TypeHello); err != nil {
					return err
				}
				return peer.Send(protocol.ConsoleData([]byte("login: ")))
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, protocol.ErrUnexpectedFrame) {
					t.Fatalf("got %v, want ErrUnexpectedFrame", err)
				}
			},
		},
		{
			name: "unknown tag",
			script: func(peer *daemontest.Peer) error {
				if _, err := peer.Expect(protocol.TypeHello); err != nil {
					return err
				}
				return peer.SendRaw([]byte{0x7f, 0x00, 0x00})
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, protocol.ErrUnknownType) {
					t.Fatalf("got %v, want ErrUnknownType", err)
				}
			},
		},
		{
			name: "empty nonce",
			script: func(peer *daemontest.Peer) error {
				if _, err := peer.Expect(protocol.TypeHello); err != nil {
					return err
				}
				return peer.SendPayload(protocol.TypeChallenge, protocol.Challenge{})
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, protocol.ErrMalformed) {
					t.Fatalf("got %v, want ErrMalformed", err)
				}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			authenticator, result := startHandshake(t, NewSignerOracle(generateSigner(t)), test.script)
			_, err := authenticator.Authenticate(context.Background(), protocol.Hello{Board: "rb3"})
			test.check(t, err)
			if scriptErr := testutil.RequireReceive(t, result, 5*time.Second, "daemon script"); scriptErr != nil {
				t.Fatalf("daemon script: %v", scriptErr)
			}
		})
	}
}

func TestAuthenticateReplyTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	authenticator, result := startHandshake(t, NewSignerOracle(generateSigner(t)), func(peer *daemontest.Peer) error {
		if _, err := peer.Expect(protocol.TypeHello); err != nil {
			return err
		}
		<-release
		return nil
	})
	authenticator.ReplyTimeout = 50 * time.Millisecond

	_, err := authenticator.Authenticate(context.Background(), protocol.Hello{})
	close(release)
	if !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Step != "await challenge" {
		t.Errorf("got %v, want TransportError at await challenge", err)
	}
	testutil.RequireReceive(t, result, 5*time.Second, "daemon script")
}
