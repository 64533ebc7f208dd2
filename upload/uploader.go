// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sk8brd/sk8brd/protocol"
)

const (
	// DefaultChunkSize is the image bytes carried per DataChunk.
	DefaultChunkSize = 8 * 1024

	// DefaultWindow is the number of chunks that may be in flight
	// before the uploader waits for an acknowledgement.
	DefaultWindow = 8

	// DefaultReplyTimeout bounds each wait for a ChunkAck or the final
	// UploadResult. Flashing the image can keep the daemon busy after
	// EndUpload, so this is longer than the handshake timeout.
	DefaultReplyTimeout = 60 * time.Second
)

// Transport is the slice of protocol.Conn the uploader needs.
type Transport interface {
	Send(frame protocol.Frame) error
	RecvWithin(timeout time.Duration) (protocol.Frame, error)
}

// Transfer is the state of one upload.
type Transfer struct {
	Total        uint64
	Sent         uint64
	Acknowledged uint64
	Chunks       int
}

// Percent returns acknowledged progress in whole percent. An empty image
// is complete by definition.
func (t Transfer) Percent() int {
	if t.Total == 0 {
		return 100
	}
	return int(t.Acknowledged * 100 / t.Total)
}

// ChunkCount returns how many DataChunk frames an image of size bytes
// takes at chunkSize bytes per chunk.
func ChunkCount(size uint64, chunkSize int) int {
	if size == 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + uint64(chunkSize) - 1) / uint64(chunkSize))
}

// Uploader sends images over one connection.
type Uploader struct {
	transport Transport

	// ChunkSize is the image bytes per DataChunk, capped at
	// protocol.MaxChunkData. Zero means DefaultChunkSize.
	ChunkSize int

	// Window is the maximum number of unacknowledged chunks. Zero
	// means DefaultWindow.
	Window int

	// ReplyTimeout bounds each wait for the daemon. Zero means
	// DefaultReplyTimeout.
	ReplyTimeout time.Duration

	// Progress, if set, is called after every chunk sent and every
	// acknowledgement received.
	Progress func(Transfer)

	// Sink, if set, receives ConsoleData, StatusReport, BoardInfo and
	// FastbootPresent frames that arrive during the transfer.
	Sink func(protocol.Frame)

	logger *slog.Logger
}

// New creates an Uploader with default pacing. A nil logger discards
// output.
func New(transport Transport, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Uploader{
		transport: transport,
		logger:    logger.With("component", "upload"),
	}
}

// Negotiate tightens chunk size and window to the daemon's preferences
// from Accepted. Preferences looser than the current settings are
// ignored.
func (u *Uploader) Negotiate(accepted protocol.Accepted) {
	if accepted.ChunkSize > 0 && accepted.ChunkSize < u.chunkSize() {
		u.ChunkSize = accepted.ChunkSize
	}
	if accepted.Window > 0 && accepted.Window < u.window() {
		u.Window = accepted.Window
	}
}

func (u *Uploader) chunkSize() int {
	size := u.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	return min(size, protocol.MaxChunkData)
}

func (u *Uploader) window() int {
	if u.Window <= 0 {
		return DefaultWindow
	}
	return u.Window
}

func (u *Uploader) replyTimeout() time.Duration {
	if u.ReplyTimeout <= 0 {
		return DefaultReplyTimeout
	}
	return u.ReplyTimeout
}

// Upload sends image and waits for the daemon's verdict. digest is the
// BLAKE3 hash announced in BeginUpload; it may be nil.
func (u *Uploader) Upload(ctx context.Context, image []byte, digest []byte) (Transfer, error) {
	chunkSize := u.chunkSize()
	window := u.window()
	transfer := Transfer{Total: uint64(len(image))}
	logger := u.logger.With("total_bytes", transfer.Total, "chunk_size", chunkSize, "window", window)
	logger.Debug("beginning upload", "chunks", ChunkCount(transfer.Total, chunkSize))

	begin, err := protocol.NewFrame(protocol.TypeBeginUpload, protocol.BeginUpload{
		TotalSize: transfer.Total,
		Digest:    digest,
	})
	if err != nil {
		return transfer, err
	}
	if err := u.send(begin); err != nil {
		return transfer, err
	}

	// outstanding holds the end offset of each unacknowledged chunk,
	// oldest first.
	var outstanding []uint64
	for transfer.Acknowledged < transfer.Total {
		if err := ctx.Err(); err != nil {
			return transfer, err
		}
		for transfer.Sent < transfer.Total && len(outstanding) < window {
			end := min(transfer.Sent+uint64(chunkSize), transfer.Total)
			frame, err := protocol.DataChunk{Offset: transfer.Sent, Data: image[transfer.Sent:end]}.Encode()
			if err != nil {
				return transfer, err
			}
			if err := u.send(frame); err != nil {
				return transfer, err
			}
			outstanding = append(outstanding, end)
			transfer.Sent = end
			transfer.Chunks++
			u.report(transfer)
		}

		frame, err := u.await(ctx, "awaiting chunk acknowledgement")
		if err != nil {
			return transfer, err
		}
		switch frame.Type {
		case protocol.TypeChunkAck:
			var ack protocol.ChunkAck
			if err := protocol.Decode(frame, protocol.TypeChunkAck, &ack); err != nil {
				return transfer, err
			}
			if ack.BytesReceived > transfer.Sent {
				return transfer, fmt.Errorf("%w: daemon acknowledged %d bytes but only %d were sent",
					protocol.ErrMalformed, ack.BytesReceived, transfer.Sent)
			}
			if ack.BytesReceived < transfer.Acknowledged {
				return transfer, fmt.Errorf("%w: acknowledgement went backwards from %d to %d bytes",
					protocol.ErrMalformed, transfer.Acknowledged, ack.BytesReceived)
			}
			transfer.Acknowledged = ack.BytesReceived
			for len(outstanding) > 0 && outstanding[0] <= transfer.Acknowledged {
				outstanding = outstanding[1:]
			}
			u.report(transfer)

		case protocol.TypeUploadResult:
			// The daemon may abort mid-transfer (disk full, digest
			// mismatch on a resumed transfer). A premature success is
			// a protocol violation.
			var result protocol.UploadResult
			if err := protocol.Decode(frame, protocol.TypeUploadResult, &result); err != nil {
				return transfer, err
			}
			if !result.Success {
				return transfer, &RejectedError{Message: result.Message}
			}
			return transfer, protocol.Unexpected(frame, "upload (before EndUpload)")

		default:
			if err := u.passthrough(frame); err != nil {
				return transfer, err
			}
		}
	}

	if err := u.send(protocol.Control(protocol.TypeEndUpload)); err != nil {
		return transfer, err
	}
	logger.Debug("all chunks acknowledged, awaiting result", "chunks", transfer.Chunks)

	for {
		frame, err := u.await(ctx, "awaiting upload result")
		if err != nil {
			return transfer, err
		}
		if frame.Type != protocol.TypeUploadResult {
			if err := u.passthrough(frame); err != nil {
				return transfer, err
			}
			continue
		}
		var result protocol.UploadResult
		if err := protocol.Decode(frame, protocol.TypeUploadResult, &result); err != nil {
			return transfer, err
		}
		if !result.Success {
			return transfer, &RejectedError{Message: result.Message}
		}
		logger.Info("upload complete", "chunks", transfer.Chunks, "message", result.Message)
		return transfer, nil
	}
}

func (u *Uploader) send(frame protocol.Frame) error {
	if err := u.transport.Send(frame); err != nil {
		return fmt.Errorf("%w: sending %s: %w", ErrIncomplete, frame.Type, err)
	}
	return nil
}

// await receives the next frame. Framing violations pass through; any
// other receive failure, including the reply timeout, is ErrIncomplete.
func (u *Uploader) await(ctx context.Context, step string) (protocol.Frame, error) {
	frame, err := u.transport.RecvWithin(u.replyTimeout())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Frame{}, ctxErr
		}
		if errors.Is(err, protocol.ErrMalformed) || errors.Is(err, protocol.ErrUnknownType) {
			return protocol.Frame{}, err
		}
		return protocol.Frame{}, fmt.Errorf("%w: %s: %w", ErrIncomplete, step, err)
	}
	return frame, nil
}

// passthrough hands console and status frames to the sink. Anything
// else is a protocol violation.
func (u *Uploader) passthrough(frame protocol.Frame) error {
	switch frame.Type {
	case protocol.TypeConsoleData, protocol.TypeStatusReport,
		protocol.TypeBoardInfo, protocol.TypeFastbootPresent:
		if u.Sink != nil {
			u.Sink(frame)
		}
		return nil
	default:
		return protocol.Unexpected(frame, "upload")
	}
}

func (u *Uploader) report(transfer Transfer) {
	if u.Progress != nil {
		u.Progress(transfer)
	}
}
