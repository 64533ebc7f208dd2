// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package session drives one client session through its lifecycle:
//
//	Connecting → Authenticating → (Uploading)? → Interactive → Closed
//
// with Failed reachable from every state. [Session] owns the connection
// and is the only place state changes; the protocol work of each phase is
// delegated to the auth, upload and console packages.
//
// Connecting covers the dial and the opening Hello/Challenge exchange, so
// a daemon that drops the connection before issuing a challenge fails the
// session from Connecting. Closed is reached only by an explicit Quit, a
// clean daemon close, or (for the batch front-end) a completed upload;
// every other ending is a [*Failure] recording the state it left.
//
// [RunInteractive] and [RunBatch] are the two front-end sequences built
// on the same state machine.
package session
