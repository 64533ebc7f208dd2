// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package upload streams a boot image to the daemon.
//
// A transfer is BeginUpload (size and BLAKE3 digest), a run of DataChunk
// frames, EndUpload, and the daemon's mandatory UploadResult. Chunks are
// paced by cumulative ChunkAck replies: at most Window chunks may be
// unacknowledged at once, and EndUpload is only sent once every chunk has
// been acknowledged. Each wait for a daemon reply is bounded by
// ReplyTimeout.
//
// The uploader owns the connection for the duration of the transfer.
// Console output and status reports the daemon interleaves with the acks
// are handed to an optional sink; any other frame is a protocol
// violation.
package upload
