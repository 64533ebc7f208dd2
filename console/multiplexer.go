// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sk8brd/sk8brd/lib/netutil"
	"github.com/sk8brd/sk8brd/protocol"
)

const (
	// DefaultQueueDepth bounds the outbound frame queue. Local input
	// blocks once it is full, which only happens when the daemon stops
	// reading.
	DefaultQueueDepth = 64

	// DefaultFlushTimeout bounds how long Quit waits for queued frames
	// to be written before closing the connection.
	DefaultFlushTimeout = 2 * time.Second

	inputBufferSize = 1024
)

// ErrPanicked wraps a panic recovered from a relay goroutine.
var ErrPanicked = errors.New("console relay panicked")

// Outcome is how a console session ended without error.
type Outcome uint8

const (
	// OutcomeQuit means the user issued the Quit command.
	OutcomeQuit Outcome = iota + 1

	// OutcomeRemoteClosed means the daemon closed the connection.
	OutcomeRemoteClosed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeQuit:
		return "quit"
	case OutcomeRemoteClosed:
		return "remote closed"
	}
	return "unknown"
}

// Transport is the connection the multiplexer drives. Recv is only ever
// called from the reader goroutine and Send only from the writer
// goroutine. *protocol.Conn satisfies it.
type Transport interface {
	Send(frame protocol.Frame) error
	Recv() (protocol.Frame, error)
	Close() error
}

// canceler is implemented by input readers whose blocked Read can be
// interrupted, such as cancelreader.CancelReader.
type canceler interface {
	Cancel() bool
}

// Config wires a Multiplexer to its collaborators.
type Config struct {
	Transport Transport

	// Input is the raw local keystroke stream. If it implements
	// Cancel() bool it is canceled when the session ends.
	Input io.Reader

	// Output receives console bytes from the board.
	Output io.Writer

	// Status, if set, receives StatusReport, BoardInfo and
	// FastbootPresent frames for rendering.
	Status func(protocol.Frame)

	// Dispatcher parses Input. Nil uses DefaultPrefix with the default
	// keybinds.
	Dispatcher *Dispatcher

	// Startup frames are sent before any local input, e.g. a
	// power-cycle.
	Startup []protocol.Frame

	// OnQuit frames are sent after Quit and before the connection is
	// closed, e.g. PowerOff.
	OnQuit []protocol.Frame

	// QueueDepth is the outbound queue capacity. Zero means
	// DefaultQueueDepth.
	QueueDepth int

	// FlushTimeout bounds the flush after Quit. Zero means
	// DefaultFlushTimeout.
	FlushTimeout time.Duration

	Logger *slog.Logger
}

// Multiplexer relays one console session.
type Multiplexer struct {
	config     Config
	dispatcher *Dispatcher
	logger     *slog.Logger

	outbound chan protocol.Frame
	events   chan event

	// stop is closed when Run returns, releasing goroutines blocked on
	// the outbound queue.
	stop     chan struct{}
	stopOnce sync.Once

	writerDone chan struct{}
}

type eventKind uint8

const (
	eventQuit eventKind = iota + 1
	eventRemoteClosed
	eventInputClosed
	eventFailed
)

type event struct {
	kind eventKind
	err  error
}

// NewMultiplexer validates config and prepares a Multiplexer. Run may be
// called once.
func NewMultiplexer(config Config) (*Multiplexer, error) {
	if config.Transport == nil {
		return nil, errors.New("console: Transport is required")
	}
	if config.Input == nil {
		return nil, errors.New("console: Input is required")
	}
	if config.Output == nil {
		return nil, errors.New("console: Output is required")
	}
	dispatcher := config.Dispatcher
	if dispatcher == nil {
		dispatcher = NewDispatcher(DefaultPrefix, nil)
	}
	depth := config.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	if config.FlushTimeout <= 0 {
		config.FlushTimeout = DefaultFlushTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	// Reader, writer and input goroutines each report at most once.
	return &Multiplexer{
		config:     config,
		dispatcher: dispatcher,
		logger:     logger.With("component", "console"),
		outbound:   make(chan protocol.Frame, max(depth, len(config.Startup)+len(config.OnQuit))),
		events:     make(chan event, 3),
		stop:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}, nil
}

// Run relays until the user quits, the daemon closes the connection, a
// protocol or transport error occurs, or ctx is canceled. The transport
// is closed on return in every case.
func (m *Multiplexer) Run(ctx context.Context) (Outcome, error) {
	defer m.shutdown()

	// Startup frames go in before the input goroutine exists, so they
	// are ahead of every keystroke. The queue is sized to hold them.
	for _, frame := range m.config.Startup {
		m.outbound <- frame
	}

	go m.writeLoop()
	go m.readLoop()
	go m.inputLoop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("console canceled", "error", ctx.Err())
			return 0, ctx.Err()

		case ev := <-m.events:
			switch ev.kind {
			case eventInputClosed:
				// The board may still have output to show; keep
				// relaying until the daemon closes or ctx ends.
				m.logger.Debug("local input closed", "error", ev.err)

			case eventQuit:
				m.flush()
				m.logger.Debug("console quit")
				return OutcomeQuit, nil

			case eventRemoteClosed:
				m.logger.Debug("daemon closed the connection", "error", ev.err)
				return OutcomeRemoteClosed, nil

			case eventFailed:
				return 0, ev.err
			}
		}
	}
}

// flush waits for the writer to drain the queue after Quit.
func (m *Multiplexer) flush() {
	select {
	case <-m.writerDone:
	case <-time.After(m.config.FlushTimeout):
		m.logger.Warn("gave up flushing queued frames", "timeout", m.config.FlushTimeout)
	}
}

func (m *Multiplexer) shutdown() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.config.Transport.Close()
		if input, ok := m.config.Input.(canceler); ok {
			input.Cancel()
		}
	})
}

func (m *Multiplexer) report(kind eventKind, err error) {
	select {
	case m.events <- event{kind: kind, err: err}:
	case <-m.stop:
	}
}

// recoverLoop turns a panic in one of the relay goroutines (including
// the Status callback and Output writes) into a failed Run, so the caller
// still restores the terminal.
func (m *Multiplexer) recoverLoop(loop string) {
	if r := recover(); r != nil {
		m.logger.Error("console loop panicked", "loop", loop, "panic", r, "stack", string(debug.Stack()))
		m.report(eventFailed, fmt.Errorf("%w in %s loop: %v", ErrPanicked, loop, r))
	}
}

// writeLoop is the only goroutine that sends on the transport. It exits
// when the queue is closed (after Quit) or on stop.
func (m *Multiplexer) writeLoop() {
	defer close(m.writerDone)
	defer m.recoverLoop("writer")
	for {
		select {
		case frame, ok := <-m.outbound:
			if !ok {
				return
			}
			if err := m.config.Transport.Send(frame); err != nil {
				if netutil.IsExpectedCloseError(err) {
					m.report(eventRemoteClosed, err)
				} else {
					m.report(eventFailed, fmt.Errorf("sending %s: %w", frame.Type, err))
				}
				return
			}
		case <-m.stop:
			return
		}
	}
}

// readLoop is the only goroutine that receives from the transport.
func (m *Multiplexer) readLoop() {
	defer m.recoverLoop("reader")
	for {
		frame, err := m.config.Transport.Recv()
		if err != nil {
			if errors.Is(err, protocol.ErrConnectionClosed) || netutil.IsExpectedCloseError(err) {
				m.report(eventRemoteClosed, err)
			} else {
				m.report(eventFailed, err)
			}
			return
		}
		if err := m.handleInbound(frame); err != nil {
			m.report(eventFailed, err)
			return
		}
	}
}

func (m *Multiplexer) handleInbound(frame protocol.Frame) error {
	switch frame.Type {
	case protocol.TypeConsoleData:
		if _, err := m.config.Output.Write(frame.Payload); err != nil {
			return fmt.Errorf("writing console output: %w", err)
		}

	case protocol.TypeStatusReport, protocol.TypeBoardInfo, protocol.TypeFastbootPresent:
		if m.config.Status != nil {
			m.config.Status(frame)
		}

	case protocol.TypePowerOn, protocol.TypePowerOff,
		protocol.TypeVbusOn, protocol.TypeVbusOff, protocol.TypeSelectBoard:
		m.logger.Debug("daemon acknowledged", "type", frame.Type)

	default:
		return protocol.Unexpected(frame, "console session")
	}
	return nil
}

// inputLoop reads local input, feeds the dispatcher and queues the
// resulting frames in input order.
func (m *Multiplexer) inputLoop() {
	defer m.recoverLoop("input")
	buffer := make([]byte, inputBufferSize)
	for {
		n, err := m.config.Input.Read(buffer)
		if n > 0 {
			if quit := m.dispatch(buffer[:n]); quit {
				return
			}
		}
		if err != nil {
			m.report(eventInputClosed, err)
			return
		}
	}
}

// dispatch queues the frames for one chunk of input. It returns true
// once Quit has been handled; input after Quit is discarded.
func (m *Multiplexer) dispatch(input []byte) bool {
	prefix := m.dispatcher.Prefix()
	for _, ev := range m.dispatcher.Feed(input) {
		if ev.Data != nil {
			if !m.enqueue(protocol.ConsoleData(ev.Data)) {
				return true
			}
			continue
		}
		m.logger.Debug("console command", "command", ev.Command)
		if ev.Command == Quit {
			for _, frame := range m.config.OnQuit {
				if !m.enqueue(frame) {
					return true
				}
			}
			close(m.outbound)
			m.report(eventQuit, nil)
			return true
		}
		frame, ok := ev.Command.Frame(prefix)
		if !ok {
			continue
		}
		if !m.enqueue(frame) {
			return true
		}
	}
	return false
}

func (m *Multiplexer) enqueue(frame protocol.Frame) bool {
	select {
	case m.outbound <- frame:
		return true
	case <-m.stop:
		return false
	}
}
