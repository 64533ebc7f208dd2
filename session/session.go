// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sk8brd/sk8brd/auth"
	"github.com/sk8brd/sk8brd/console"
	"github.com/sk8brd/sk8brd/protocol"
	"github.com/sk8brd/sk8brd/upload"
)

const (
	// DefaultPort is the daemon's TCP port when the address has none.
	DefaultPort = "7272"

	// DefaultConnectTimeout bounds the TCP dial.
	DefaultConnectTimeout = 10 * time.Second
)

// Config describes the session to open.
type Config struct {
	// Address is the daemon's host or host:port. A bare host uses
	// DefaultPort.
	Address string

	// User is the farm account to act as. Optional.
	User string

	// Board is the board to claim. Empty for a session that only lists
	// boards.
	Board string

	// Client identifies this build in Hello, e.g. "sk8brd/1.2.0".
	Client string

	// Capabilities are the optional protocol features to offer.
	Capabilities []string

	// PreferredKey is a key fingerprint to try first.
	PreferredKey string

	// ConnectTimeout bounds the dial. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// ReplyTimeout bounds each handshake and board-list reply. Zero
	// means auth.DefaultReplyTimeout.
	ReplyTimeout time.Duration

	// UploadReplyTimeout bounds each upload acknowledgement. Zero means
	// upload.DefaultReplyTimeout.
	UploadReplyTimeout time.Duration

	// ChunkSize and Window set upload pacing; the daemon may tighten
	// them. Zero means the upload package defaults.
	ChunkSize int
	Window    int

	// OnTransition, if set, is called after every state change.
	OnTransition func(from, to State)

	Logger *slog.Logger
}

// Session is one client↔daemon connection.
type Session struct {
	// ID correlates this session's log lines.
	ID string

	config  Config
	address string
	oracle  auth.SigningOracle
	logger  *slog.Logger

	mu            sync.Mutex
	state         State
	failure       *Failure
	authenticated bool
	conn          *protocol.Conn
	challenge     protocol.Challenge
	outcome       auth.Outcome
}

// New validates config and returns a session in Connecting.
func New(config Config, oracle auth.SigningOracle) (*Session, error) {
	if config.Address == "" {
		return nil, errors.New("session: daemon address is required")
	}
	if oracle == nil {
		return nil, errors.New("session: signing oracle is required")
	}
	address, err := normalizeAddress(config.Address)
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	return &Session{
		ID:      id,
		config:  config,
		address: address,
		oracle:  oracle,
		logger:  logger.With("session_id", id, "daemon", address, "board", config.Board),
		state:   Connecting,
	}, nil
}

// normalizeAddress appends DefaultPort to a bare host.
func normalizeAddress(address string) (string, error) {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address, nil
	}
	host := strings.TrimSuffix(strings.TrimPrefix(address, "["), "]")
	if host == "" || strings.ContainsAny(host, "/ ") {
		return "", fmt.Errorf("session: invalid daemon address %q", address)
	}
	return net.JoinHostPort(host, DefaultPort), nil
}

// Address returns the daemon's host:port.
func (s *Session) Address() string { return s.address }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failure returns why the session failed, or nil.
func (s *Session) Failure() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Accepted returns the daemon's Accepted reply once authenticated.
func (s *Session) Accepted() (protocol.Accepted, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome.Accepted, s.authenticated
}

// Connect dials the daemon and opens the handshake: Hello is sent and
// the Challenge received. On success the session is Authenticating.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.require(Connecting); err != nil {
		return err
	}
	timeout := s.config.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	raw, err := dialer.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return s.fail(ctx, fmt.Errorf("connecting to %s: %w", s.address, err))
	}
	conn := protocol.NewConn(raw)
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.logger.Debug("connected", "local", raw.LocalAddr().String())

	defer s.watch(ctx)()
	challenge, err := s.authenticator().Hello(ctx, protocol.Hello{
		User:         s.config.User,
		Board:        s.config.Board,
		Client:       s.config.Client,
		Capabilities: s.config.Capabilities,
	})
	if err != nil {
		return s.fail(ctx, err)
	}
	s.mu.Lock()
	s.challenge = challenge
	s.mu.Unlock()
	s.transition(Authenticating)
	return nil
}

// Authenticate answers the challenge with the oracle's keys.
func (s *Session) Authenticate(ctx context.Context) (auth.Outcome, error) {
	if err := s.require(Authenticating); err != nil {
		return auth.Outcome{}, err
	}
	s.mu.Lock()
	if s.authenticated {
		s.mu.Unlock()
		return auth.Outcome{}, fmt.Errorf("%w: already authenticated", ErrInvalidState)
	}
	challenge := s.challenge
	s.mu.Unlock()

	defer s.watch(ctx)()
	outcome, err := s.authenticator().Respond(ctx, challenge)
	if err != nil {
		return auth.Outcome{}, s.fail(ctx, err)
	}
	s.mu.Lock()
	s.authenticated = true
	s.outcome = outcome
	s.mu.Unlock()
	s.logger.Info("session authenticated", "key", outcome.Key.ID, "capabilities", outcome.Accepted.Capabilities)
	return outcome, nil
}

// UploadOptions configures Upload.
type UploadOptions struct {
	// Digest is announced in BeginUpload. Optional.
	Digest []byte

	// Progress receives transfer progress.
	Progress func(upload.Transfer)

	// Sink receives console and status frames the daemon sends during
	// the transfer.
	Sink func(protocol.Frame)
}

// Upload sends a boot image. The session must be authenticated and not
// yet interactive; on success it remains in Uploading until Interact or
// Close.
func (s *Session) Upload(ctx context.Context, image []byte, options UploadOptions) (upload.Transfer, error) {
	if err := s.requireAuthenticated(Authenticating); err != nil {
		return upload.Transfer{}, err
	}
	s.transition(Uploading)

	uploader := upload.New(s.connection(), s.logger)
	uploader.ChunkSize = s.config.ChunkSize
	uploader.Window = s.config.Window
	uploader.ReplyTimeout = s.config.UploadReplyTimeout
	uploader.Progress = options.Progress
	uploader.Sink = options.Sink
	accepted, _ := s.Accepted()
	uploader.Negotiate(accepted)

	defer s.watch(ctx)()
	transfer, err := uploader.Upload(ctx, image, options.Digest)
	if err != nil {
		return transfer, s.fail(ctx, err)
	}
	return transfer, nil
}

// ListBoards asks the daemon for its boards. Replies arrive one
// ListDevices frame per board and end with an empty one.
func (s *Session) ListBoards(ctx context.Context) ([]string, error) {
	if err := s.requireAuthenticated(Authenticating); err != nil {
		return nil, err
	}
	conn := s.connection()
	defer s.watch(ctx)()

	if err := conn.Send(protocol.Control(protocol.TypeListDevices)); err != nil {
		return nil, s.fail(ctx, fmt.Errorf("requesting board list: %w", err))
	}
	timeout := s.config.ReplyTimeout
	if timeout <= 0 {
		timeout = auth.DefaultReplyTimeout
	}
	var boards []string
	for {
		frame, err := conn.RecvWithin(timeout)
		if err != nil {
			return nil, s.fail(ctx, fmt.Errorf("reading board list: %w", err))
		}
		switch frame.Type {
		case protocol.TypeListDevices:
			if len(frame.Payload) == 0 {
				s.logger.Debug("board list complete", "boards", len(boards))
				return boards, nil
			}
			boards = append(boards, strings.TrimSpace(string(frame.Payload)))
		case protocol.TypeStatusReport, protocol.TypeConsoleData:
			// Nothing is claimed yet, so these are informational.
		default:
			return nil, s.fail(ctx, protocol.Unexpected(frame, "board listing"))
		}
	}
}

// Interact runs the console phase until Quit, daemon close or failure.
// Transport and Logger in config are supplied by the session.
func (s *Session) Interact(ctx context.Context, config console.Config) (console.Outcome, error) {
	if err := s.requireAuthenticated(Authenticating, Uploading); err != nil {
		return 0, err
	}
	s.transition(Interactive)

	config.Transport = s.connection()
	config.Logger = s.logger
	multiplexer, err := console.NewMultiplexer(config)
	if err != nil {
		return 0, s.fail(ctx, err)
	}
	outcome, err := multiplexer.Run(ctx)
	if err != nil {
		return 0, s.fail(ctx, err)
	}
	s.logger.Info("console ended", "outcome", outcome.String())
	s.finish()
	return outcome, nil
}

// Close ends the session. A session that has not failed becomes Closed.
// Safe to call more than once.
func (s *Session) Close() error {
	s.finish()
	return nil
}

// Fail moves the session to Failed with err, e.g. when the front-end is
// interrupted between phases. A terminal session is left unchanged.
func (s *Session) Fail(err error) *Failure {
	return s.failWith(err)
}

func (s *Session) authenticator() *auth.Authenticator {
	authenticator := auth.New(s.connection(), s.oracle, s.logger)
	authenticator.ReplyTimeout = s.config.ReplyTimeout
	authenticator.PreferredKey = s.config.PreferredKey
	return authenticator
}

func (s *Session) connection() *protocol.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// watch closes the connection if ctx is canceled while a phase is
// blocked on it. The returned function stops watching.
func (s *Session) watch(ctx context.Context) func() {
	conn := s.connection()
	stop := context.AfterFunc(ctx, func() {
		s.logger.Debug("context canceled, closing connection", "cause", context.Cause(ctx))
		conn.Close()
	})
	return func() { stop() }
}

func (s *Session) require(allowed ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range allowed {
		if s.state == state {
			return nil
		}
	}
	return fmt.Errorf("%w: session is %s", ErrInvalidState, s.state)
}

func (s *Session) requireAuthenticated(allowed ...State) error {
	if err := s.require(allowed...); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return fmt.Errorf("%w: session is not authenticated", ErrInvalidState)
	}
	return nil
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from == to {
		return
	}
	s.logger.Debug("session state", "from", from.String(), "to", to.String())
	if s.config.OnTransition != nil {
		s.config.OnTransition(from, to)
	}
}

// fail records err (or the context's cancellation cause, when the
// context ended) as the session's failure.
func (s *Session) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
	}
	return s.failWith(err)
}

func (s *Session) failWith(err error) *Failure {
	s.mu.Lock()
	if s.state.Terminal() {
		failure := s.failure
		s.mu.Unlock()
		if failure == nil {
			return &Failure{From: Closed, Err: err}
		}
		return failure
	}
	from := s.state
	s.state = Failed
	s.failure = &Failure{From: from, Err: err}
	failure := s.failure
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.logger.Debug("session state", "from", from.String(), "to", Failed.String(), "error", err)
	if s.config.OnTransition != nil {
		s.config.OnTransition(from, Failed)
	}
	return failure
}

// finish closes the connection and moves a live session to Closed.
func (s *Session) finish() {
	s.mu.Lock()
	conn := s.conn
	terminal := s.state.Terminal()
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if !terminal {
		s.transition(Closed)
	}
}
