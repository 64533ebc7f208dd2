// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sk8brd/sk8brd/lib/netutil"
)

// MessageType is the one-byte tag at the start of every frame.
type MessageType uint8

// Tags shared with the cdba daemon. These values are protocol constants;
// changing them breaks interoperability.
const (
	// TypeSelectBoard is the daemon's acknowledgement that the board
	// named in Hello has been claimed.
	TypeSelectBoard MessageType = 1

	// TypeConsoleData carries raw console bytes. Bidirectional:
	// keystrokes flow client→daemon, board output daemon→client.
	TypeConsoleData MessageType = 2

	TypeHardReset MessageType = 3
	TypePowerOn   MessageType = 4
	TypePowerOff  MessageType = 5

	// TypeFastbootPresent reports whether the board currently enumerates
	// as a fastboot device. Payload is one byte, non-zero for present.
	TypeFastbootPresent MessageType = 6

	// TypeDataChunk carries one slice of the boot image. Payload is an
	// 8-byte big-endian offset followed by the chunk bytes.
	TypeDataChunk MessageType = 7

	TypeFastbootBoot MessageType = 8

	// TypeStatusReport carries a JSON status snapshot. Daemon→client.
	TypeStatusReport MessageType = 9

	TypeVbusOn         MessageType = 10
	TypeVbusOff        MessageType = 11
	TypeFastbootReboot MessageType = 12
	TypeRequestBreak   MessageType = 13

	// TypeListDevices requests the board list (empty payload) and carries
	// it back as text, one reply per board, terminated by an empty reply.
	TypeListDevices MessageType = 14

	// TypeBoardInfo carries free-form text describing the claimed board.
	TypeBoardInfo MessageType = 15

	TypeFastbootContinue MessageType = 16
)

// Session-level tags for the authenticated, flow-controlled daemon.
const (
	TypeHello         MessageType = 0x20
	TypeChallenge     MessageType = 0x21
	TypeResponse      MessageType = 0x22
	TypeAccepted      MessageType = 0x23
	TypeRejected      MessageType = 0x24
	TypeBeginUpload   MessageType = 0x25
	TypeChunkAck      MessageType = 0x26
	TypeEndUpload     MessageType = 0x27
	TypeUploadResult  MessageType = 0x28
	TypeRequestStatus MessageType = 0x29
)

var typeNames = map[MessageType]string{
	TypeSelectBoard:      "SelectBoard",
	TypeConsoleData:      "ConsoleData",
	TypeHardReset:        "HardReset",
	TypePowerOn:          "PowerOn",
	TypePowerOff:         "PowerOff",
	TypeFastbootPresent:  "FastbootPresent",
	TypeDataChunk:        "DataChunk",
	TypeFastbootBoot:     "FastbootBoot",
	TypeStatusReport:     "StatusReport",
	TypeVbusOn:           "VbusOn",
	TypeVbusOff:          "VbusOff",
	TypeFastbootReboot:   "FastbootReboot",
	TypeRequestBreak:     "RequestBreak",
	TypeListDevices:      "ListDevices",
	TypeBoardInfo:        "BoardInfo",
	TypeFastbootContinue: "FastbootContinue",
	TypeHello:            "Hello",
	TypeChallenge:        "Challenge",
	TypeResponse:         "Response",
	TypeAccepted:         "Accepted",
	TypeRejected:         "Rejected",
	TypeBeginUpload:      "BeginUpload",
	TypeChunkAck:         "ChunkAck",
	TypeEndUpload:        "EndUpload",
	TypeUploadResult:     "UploadResult",
	TypeRequestStatus:    "RequestStatus",
}

// Known reports whether t is a tag this client understands.
func (t MessageType) Known() bool {
	_, ok := typeNames[t]
	return ok
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(t))
}

// headerLength is the fixed size of a frame header: 1 byte type + 2 bytes
// little-endian payload length.
const headerLength = 3

// MaxPayloadLength bounds the memory a single inbound frame may claim.
// The 16-bit length field could express 64 KiB; nothing the daemon sends
// legitimately approaches 16 KiB, so anything above is treated as a
// desynchronized stream.
const MaxPayloadLength = 16 * 1024

// Errors returned by the codec. Transport failures are wrapped so that
// callers can still inspect the underlying net error.
var (
	// ErrConnectionClosed reports that the connection ended: EOF between
	// frames or in the middle of one, or a reset by the peer.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMalformed reports a header whose declared length exceeds
	// MaxPayloadLength, or a payload that does not decode.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnknownType reports a tag outside the catalogue.
	ErrUnknownType = errors.New("unknown message type")

	// ErrUnexpectedFrame reports a well-formed frame that is not valid
	// in the current protocol phase.
	ErrUnexpectedFrame = errors.New("unexpected frame")

	// ErrTimeout reports that the daemon did not reply within the
	// per-reply deadline.
	ErrTimeout = errors.New("timed out waiting for daemon")

	// ErrWriterBroken is returned by every Send after a failed write:
	// the peer may have seen a partial frame, so the stream is no
	// longer trustworthy.
	ErrWriterBroken = errors.New("connection writer broken by earlier failure")

	// ErrPayloadTooLarge is returned when encoding a frame whose payload
	// exceeds MaxPayloadLength.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum length")
)

// Frame is a single protocol message.
type Frame struct {
	Type    MessageType
	Payload []byte
}

// String summarizes the frame for logs without dumping the payload.
func (f Frame) String() string {
	return fmt.Sprintf("%s[%d]", f.Type, len(f.Payload))
}

// Unexpected builds the error for a frame that arrived out of phase.
func Unexpected(frame Frame, phase string) error {
	return fmt.Errorf("%w: %s during %s", ErrUnexpectedFrame, frame.Type, phase)
}

// AppendFrame appends the wire encoding of frame to buffer.
func AppendFrame(buffer []byte, frame Frame) ([]byte, error) {
	if len(frame.Payload) > MaxPayloadLength {
		return buffer, fmt.Errorf("%w: %s payload of %d bytes (maximum %d)",
			ErrPayloadTooLarge, frame.Type, len(frame.Payload), MaxPayloadLength)
	}
	buffer = append(buffer, byte(frame.Type))
	buffer = binary.LittleEndian.AppendUint16(buffer, uint16(len(frame.Payload)))
	return append(buffer, frame.Payload...), nil
}

// WriteFrame writes a framed message to w with a single Write call, so a
// frame is never split across writes by this layer.
func WriteFrame(w io.Writer, frame Frame) error {
	encoded, err := AppendFrame(make([]byte, 0, headerLength+len(frame.Payload)), frame)
	if err != nil {
		return err
	}
	written, err := w.Write(encoded)
	if err != nil {
		if netutil.IsExpectedCloseError(err) {
			return fmt.Errorf("write %s frame: %w: %w", frame.Type, ErrConnectionClosed, err)
		}
		return fmt.Errorf("write %s frame: %w", frame.Type, err)
	}
	if written != len(encoded) {
		return fmt.Errorf("write %s frame: %w", frame.Type, io.ErrShortWrite)
	}
	return nil
}

// ReadFrame reads one framed message from r. It validates the tag and
// the declared length before allocating the payload.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, readError("header", err)
	}
	messageType := MessageType(header[0])
	payloadLength := int(binary.LittleEndian.Uint16(header[1:3]))
	if payloadLength > MaxPayloadLength {
		return Frame{}, fmt.Errorf("%w: %s declares %d payload bytes (maximum %d)",
			ErrMalformed, messageType, payloadLength, MaxPayloadLength)
	}
	if !messageType.Known() {
		return Frame{}, fmt.Errorf("%w: tag 0x%02x", ErrUnknownType, uint8(messageType))
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, readError(messageType.String()+" payload", err)
		}
	}
	return Frame{Type: messageType, Payload: payload}, nil
}

// readError maps EOF (clean or mid-frame) to ErrConnectionClosed, as
// well as a reset from a daemon that closed with our data still unread.
// Everything else stays wrapped for the caller.
func readError(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("read %s: %w", what, ErrConnectionClosed)
	}
	if netutil.IsExpectedCloseError(err) {
		return fmt.Errorf("read %s: %w: %w", what, ErrConnectionClosed, err)
	}
	return fmt.Errorf("read %s: %w", what, err)
}
