// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the framed wire protocol spoken between the
// sk8brd client and a board-farm control daemon.
//
// Every message is a 3-byte header (1 byte type, 2 bytes little-endian
// payload length) followed by the payload. The header layout and the tag
// values shared with the cdba daemon (console data, power, VBUS, break,
// fastboot download, device listing) are fixed by that daemon; the
// session-level messages used for authentication and acknowledged uploads
// occupy tags from 0x20 upward. See [MessageType] for the catalogue.
//
// [WriteFrame] and [ReadFrame] are the stateless codec. [Reader] and
// [Writer] own one direction of a connection each: the reader enforces
// [MaxPayloadLength] and rejects unknown tags, the writer emits each frame
// with a single Write and refuses further use after a failed write. [Conn]
// pairs the two halves over a net.Conn and adds per-reply deadlines for
// the request/response phases.
//
// Structured payloads ([Hello], [Challenge], [Response], [Accepted],
// [Rejected], [BeginUpload], [ChunkAck], [UploadResult]) are CBOR maps
// encoded through lib/codec. [DataChunk] has a fixed binary layout.
// [StatusReport] is daemon-defined JSON, decoded loosely.
package protocol
