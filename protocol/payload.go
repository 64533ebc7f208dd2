// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/sk8brd/sk8brd/lib/codec"
)

// Hello opens a session. Client→daemon, first frame on the connection.
type Hello struct {
	// User is the farm account the client acts as. Optional; the
	// daemon falls back to the key owner.
	User string `cbor:"user,omitempty"`

	// Board is the board to claim. Empty when the client only wants
	// the device list.
	Board string `cbor:"board,omitempty"`

	// Client identifies the client build, for daemon-side logs.
	Client string `cbor:"client,omitempty"`

	// Capabilities lists optional protocol features the client
	// supports.
	Capabilities []string `cbor:"capabilities,omitempty"`
}

// Challenge carries the nonce the client must sign. Daemon→client.
type Challenge struct {
	Nonce []byte `cbor:"nonce"`
}

// Response answers a Challenge. Client→daemon.
type Response struct {
	// KeyID is the SHA256 fingerprint of the signing key
	// ("SHA256:..." as printed by ssh-keygen -l).
	KeyID string `cbor:"key_id"`

	// PublicKey is the SSH wire encoding of the signing key, so the
	// daemon can match it against its authorized keys without a
	// fingerprint index.
	PublicKey []byte `cbor:"public_key"`

	// Format is the SSH signature algorithm (e.g. "ssh-ed25519",
	// "rsa-sha2-256").
	Format string `cbor:"format"`

	// Signature is the raw signature blob over the nonce.
	Signature []byte `cbor:"signature"`
}

// Accepted ends a successful handshake. Daemon→client.
type Accepted struct {
	// Capabilities lists the optional features the daemon enabled for
	// this session.
	Capabilities []string `cbor:"capabilities,omitempty"`

	// ChunkSize is the largest DataChunk payload the daemon wants.
	// Zero means no preference.
	ChunkSize int `cbor:"chunk_size,omitempty"`

	// Window is the number of unacknowledged chunks the daemon will
	// buffer. Zero means no preference.
	Window int `cbor:"window,omitempty"`
}

// Rejected refuses a Response. Daemon→client.
type Rejected struct {
	Reason string `cbor:"reason"`

	// Retry is set when the daemon will accept another Response for
	// the same challenge, i.e. the key was unknown rather than the
	// user being barred outright.
	Retry bool `cbor:"retry,omitempty"`
}

// BeginUpload announces an image transfer. Client→daemon.
type BeginUpload struct {
	TotalSize uint64 `cbor:"total_size"`

	// Digest is the BLAKE3-256 hash of the (decompressed) image.
	Digest []byte `cbor:"digest,omitempty"`
}

// ChunkAck acknowledges image data. Daemon→client.
type ChunkAck struct {
	// BytesReceived is cumulative: the count of image bytes, from
	// offset zero, that the daemon has durably accepted.
	BytesReceived uint64 `cbor:"bytes_received"`
}

// UploadResult reports the outcome of a transfer after EndUpload.
// Daemon→client.
type UploadResult struct {
	Success bool   `cbor:"success"`
	Message string `cbor:"message,omitempty"`
}

// DataChunk is one slice of the boot image at a given offset.
type DataChunk struct {
	Offset uint64
	Data   []byte
}

// dataChunkHeaderLength is the 8-byte offset prefix of a DataChunk
// payload.
const dataChunkHeaderLength = 8

// MaxChunkData is the largest image slice that fits in one DataChunk
// frame.
const MaxChunkData = MaxPayloadLength - dataChunkHeaderLength

// StatusReport is the daemon's status snapshot. The schema is owned by
// the daemon; known fields are lifted out for display and everything
// else is preserved in Fields.
type StatusReport struct {
	Power         *bool  `json:"power,omitempty"`
	Vbus          *bool  `json:"vbus,omitempty"`
	QueuePosition *int   `json:"queue_position,omitempty"`
	Board         string `json:"board,omitempty"`
	State         string `json:"state,omitempty"`

	// Fields holds every key in the report, known or not.
	Fields map[string]json.RawMessage `json:"-"`
}

// NewFrame encodes a structured payload into a frame of the given type.
func NewFrame(messageType MessageType, payload any) (Frame, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", messageType, err)
	}
	return Frame{Type: messageType, Payload: data}, nil
}

// Decode decodes a structured CBOR payload from frame into v, after
// checking the frame has the wanted type.
func Decode(frame Frame, want MessageType, v any) error {
	if frame.Type != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedFrame, frame.Type, want)
	}
	if err := codec.Unmarshal(frame.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, want, err)
	}
	return nil
}

// Control builds an empty-payload frame (power, VBUS, break, status
// request, end of upload, device list request).
func Control(messageType MessageType) Frame {
	return Frame{Type: messageType}
}

// ConsoleData builds a console frame. The payload is copied so the
// caller may reuse its buffer.
func ConsoleData(data []byte) Frame {
	return Frame{Type: TypeConsoleData, Payload: append([]byte(nil), data...)}
}

// Encode builds the DataChunk frame.
func (chunk DataChunk) Encode() (Frame, error) {
	if len(chunk.Data) > MaxChunkData {
		return Frame{}, fmt.Errorf("%w: chunk of %d bytes (maximum %d)",
			ErrPayloadTooLarge, len(chunk.Data), MaxChunkData)
	}
	payload := make([]byte, dataChunkHeaderLength, dataChunkHeaderLength+len(chunk.Data))
	binary.BigEndian.PutUint64(payload, chunk.Offset)
	payload = append(payload, chunk.Data...)
	return Frame{Type: TypeDataChunk, Payload: payload}, nil
}

// ParseDataChunk decodes a DataChunk payload. The returned Data aliases
// payload.
func ParseDataChunk(payload []byte) (DataChunk, error) {
	if len(payload) < dataChunkHeaderLength {
		return DataChunk{}, fmt.Errorf("%w: data chunk payload of %d bytes is shorter than its offset",
			ErrMalformed, len(payload))
	}
	return DataChunk{
		Offset: binary.BigEndian.Uint64(payload[:dataChunkHeaderLength]),
		Data:   payload[dataChunkHeaderLength:],
	}, nil
}

// ParseStatusReport decodes a StatusReport payload. Unknown fields are
// kept, and a known field of an unexpected JSON type is left unset
// rather than failing the whole report.
func ParseStatusReport(payload []byte) (StatusReport, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return StatusReport{}, fmt.Errorf("%w: status report: %v", ErrMalformed, err)
	}
	report := StatusReport{Fields: fields}
	decodeField(fields, "power", &report.Power)
	decodeField(fields, "vbus", &report.Vbus)
	decodeField(fields, "queue_position", &report.QueuePosition)
	decodeField(fields, "board", &report.Board)
	decodeField(fields, "state", &report.State)
	return report, nil
}

func decodeField[T any](fields map[string]json.RawMessage, key string, target *T) {
	raw, ok := fields[key]
	if !ok {
		return
	}
	var value T
	if err := json.Unmarshal(raw, &value); err == nil {
		*target = value
	}
}

// ParseFastbootPresent decodes the one-byte FastbootPresent payload.
func ParseFastbootPresent(payload []byte) bool {
	return len(payload) > 0 && payload[0] != 0
}
