// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sk8brd/sk8brd/protocol"
)

// DefaultReplyTimeout bounds each wait for a daemon reply during the
// handshake.
const DefaultReplyTimeout = 15 * time.Second

// Transport is the slice of protocol.Conn the handshake needs.
type Transport interface {
	Send(frame protocol.Frame) error
	RecvWithin(timeout time.Duration) (protocol.Frame, error)
}

// Outcome describes an accepted session.
type Outcome struct {
	// Key is the identity the daemon accepted.
	Key Key

	// Accepted is the daemon's reply, including negotiated
	// capabilities and upload preferences.
	Accepted protocol.Accepted
}

// Authenticator runs the handshake over one connection.
type Authenticator struct {
	transport Transport
	oracle    SigningOracle

	// ReplyTimeout bounds each wait for the daemon. Zero means
	// DefaultReplyTimeout.
	ReplyTimeout time.Duration

	// PreferredKey is a fingerprint to try before the oracle's own
	// order. Optional.
	PreferredKey string

	logger *slog.Logger
}

// New creates an Authenticator. A nil logger discards output.
func New(transport Transport, oracle SigningOracle, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Authenticator{
		transport: transport,
		oracle:    oracle,
		logger:    logger.With("component", "auth"),
	}
}

// Authenticate runs Hello followed by Respond.
func (a *Authenticator) Authenticate(ctx context.Context, hello protocol.Hello) (Outcome, error) {
	challenge, err := a.Hello(ctx, hello)
	if err != nil {
		return Outcome{}, err
	}
	return a.Respond(ctx, challenge)
}

// Hello sends the Hello frame and waits for the daemon's Challenge.
func (a *Authenticator) Hello(ctx context.Context, hello protocol.Hello) (protocol.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Challenge{}, err
	}
	frame, err := protocol.NewFrame(protocol.TypeHello, hello)
	if err != nil {
		return protocol.Challenge{}, err
	}
	if err := a.transport.Send(frame); err != nil {
		return protocol.Challenge{}, &TransportError{Step: "send hello", Err: err}
	}

	reply, err := a.await(ctx, "await challenge")
	if err != nil {
		return protocol.Challenge{}, err
	}
	if reply.Type == protocol.TypeRejected {
		// A daemon may refuse before challenging, e.g. for an unknown
		// board or a user without access.
		return protocol.Challenge{}, rejection(reply)
	}
	if reply.Type != protocol.TypeChallenge {
		return protocol.Challenge{}, protocol.Unexpected(reply, "authentication (awaiting challenge)")
	}
	var challenge protocol.Challenge
	if err := protocol.Decode(reply, protocol.TypeChallenge, &challenge); err != nil {
		return protocol.Challenge{}, err
	}
	if len(challenge.Nonce) == 0 {
		return protocol.Challenge{}, fmt.Errorf("%w: challenge with empty nonce", protocol.ErrMalformed)
	}
	a.logger.Debug("received challenge", "nonce_length", len(challenge.Nonce))
	return challenge, nil
}

// Respond signs the challenge with each candidate key in turn until the
// daemon accepts one.
func (a *Authenticator) Respond(ctx context.Context, challenge protocol.Challenge) (Outcome, error) {
	keys, err := a.oracle.ListKeys(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrNoValidKey, err)
	}
	keys = OrderKeys(keys, a.PreferredKey)
	if len(keys) == 0 {
		return Outcome{}, fmt.Errorf("%w: signing oracle offered no keys", ErrNoValidKey)
	}

	var lastReason string
	for index, key := range keys {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		logger := a.logger.With("key", key.ID, "attempt", index+1)

		signature, err := a.oracle.Sign(ctx, key, challenge.Nonce)
		if err != nil {
			logger.Debug("signing failed, trying next key", "error", err)
			lastReason = err.Error()
			continue
		}

		frame, err := protocol.NewFrame(protocol.TypeResponse, protocol.Response{
			KeyID:     key.ID,
			PublicKey: key.PublicKey.Marshal(),
			Format:    signature.Format,
			Signature: signature.Blob,
		})
		if err != nil {
			return Outcome{}, err
		}
		if err := a.transport.Send(frame); err != nil {
			return Outcome{}, &TransportError{Step: "send response", Err: err}
		}

		reply, err := a.await(ctx, "await verdict")
		if err != nil {
			return Outcome{}, err
		}
		switch reply.Type {
		case protocol.TypeAccepted:
			var accepted protocol.Accepted
			if len(reply.Payload) > 0 {
				if err := protocol.Decode(reply, protocol.TypeAccepted, &accepted); err != nil {
					return Outcome{}, err
				}
			}
			logger.Info("authenticated", "capabilities", accepted.Capabilities)
			return Outcome{Key: key, Accepted: accepted}, nil

		case protocol.TypeRejected:
			var rejected protocol.Rejected
			if err := protocol.Decode(reply, protocol.TypeRejected, &rejected); err != nil {
				return Outcome{}, err
			}
			if !rejected.Retry {
				return Outcome{}, &RejectedError{Reason: rejected.Reason}
			}
			logger.Debug("key rejected, trying next key", "reason", rejected.Reason)
			lastReason = rejected.Reason

		default:
			return Outcome{}, protocol.Unexpected(reply, "authentication (awaiting verdict)")
		}
	}

	if lastReason != "" {
		return Outcome{}, fmt.Errorf("%w: tried %d keys, last failure: %s", ErrNoValidKey, len(keys), lastReason)
	}
	return Outcome{}, fmt.Errorf("%w: tried %d keys", ErrNoValidKey, len(keys))
}

// await receives the next frame within the reply timeout. Framing
// violations are returned as they are; everything else is a transport
// failure.
func (a *Authenticator) await(ctx context.Context, step string) (protocol.Frame, error) {
	timeout := a.ReplyTimeout
	if timeout == 0 {
		timeout = DefaultReplyTimeout
	}
	frame, err := a.transport.RecvWithin(timeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return protocol.Frame{}, ctxErr
		}
		if errors.Is(err, protocol.ErrMalformed) || errors.Is(err, protocol.ErrUnknownType) {
			return protocol.Frame{}, err
		}
		return protocol.Frame{}, &TransportError{Step: step, Err: err}
	}
	return frame, nil
}

// rejection decodes a Rejected frame received before any Response.
func rejection(frame protocol.Frame) error {
	var rejected protocol.Rejected
	if err := protocol.Decode(frame, protocol.TypeRejected, &rejected); err != nil {
		return err
	}
	return &RejectedError{Reason: rejected.Reason}
}
