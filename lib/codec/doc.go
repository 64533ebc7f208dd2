// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration for structured protocol
// payloads.
//
// The daemon protocol carries small structured messages (hello,
// challenge, upload bookkeeping) as CBOR maps inside binary frames.
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so that the
// same message always produces the same bytes, which keeps wire
// compatibility tests byte-exact. Decoding ignores unknown map keys so a
// newer daemon can add fields without breaking older clients, and caps
// nesting and container sizes because the peer is not trusted to be well
// behaved.
//
//	data, err := codec.Marshal(hello)
//	err = codec.Unmarshal(frame.Payload, &challenge)
//
// Payload types use `cbor` struct tags only; none of them is ever
// rendered as JSON.
package codec
