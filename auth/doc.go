// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth performs the challenge/response handshake that opens a
// daemon session.
//
// The client sends [protocol.Hello] naming the user and board, the daemon
// answers with a [protocol.Challenge] nonce, and the client signs the
// nonce with one of the keys offered by a [SigningOracle] and returns a
// [protocol.Response]. The daemon replies Accepted or Rejected. Keys are
// tried in the order the oracle lists them (optionally with one preferred
// fingerprint moved to the front), and a Rejected reply marked retryable
// moves on to the next key.
//
// Private key material never passes through this package. [AgentOracle]
// delegates signing to a running ssh-agent over SSH_AUTH_SOCK;
// [SignerOracle] wraps in-process ssh.Signers loaded from identity files
// or generated by tests.
//
// Errors: [ErrNoValidKey] when no key satisfies the daemon,
// [*RejectedError] for a final refusal, [*TransportError] for I/O failure
// at any step, and errors wrapping protocol.ErrUnexpectedFrame or
// protocol.ErrMalformed for protocol violations. None are retried here.
package auth
