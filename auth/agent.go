// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// ErrNoAgent means SSH_AUTH_SOCK is unset.
var ErrNoAgent = errors.New("SSH_AUTH_SOCK is not set; no ssh-agent available")

// AgentOracle signs through an ssh-agent.
type AgentOracle struct {
	client agent.ExtendedAgent
	conn   net.Conn
}

// DialAgent connects to the agent named by SSH_AUTH_SOCK.
func DialAgent(ctx context.Context) (*AgentOracle, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, ErrNoAgent
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connecting to ssh-agent at %s: %w", socket, err)
	}
	return &AgentOracle{client: agent.NewClient(conn), conn: conn}, nil
}

// NewAgentOracle wraps an existing agent, e.g. agent.NewKeyring() in
// tests.
func NewAgentOracle(client agent.ExtendedAgent) *AgentOracle {
	return &AgentOracle{client: client}
}

// ListKeys returns the agent's identities in the agent's own order.
func (o *AgentOracle) ListKeys(context.Context) ([]Key, error) {
	agentKeys, err := o.client.List()
	if err != nil {
		return nil, fmt.Errorf("listing ssh-agent keys: %w", err)
	}
	keys := make([]Key, 0, len(agentKeys))
	for _, agentKey := range agentKeys {
		publicKey, err := ssh.ParsePublicKey(agentKey.Blob)
		if err != nil {
			// Certificates or key types x/crypto cannot parse are
			// skipped rather than failing the whole listing.
			continue
		}
		keys = append(keys, NewKey(publicKey, agentKey.Comment))
	}
	return keys, nil
}

// Sign asks the agent to sign nonce. RSA keys request rsa-sha2-256.
func (o *AgentOracle) Sign(_ context.Context, key Key, nonce []byte) (*ssh.Signature, error) {
	var flags agent.SignatureFlags
	if key.PublicKey.Type() == ssh.KeyAlgoRSA {
		flags = agent.SignatureFlagRsaSha256
	}
	signature, err := o.client.SignWithFlags(key.PublicKey, nonce, flags)
	if err != nil {
		return nil, fmt.Errorf("ssh-agent signing with %s: %w", key.ID, err)
	}
	return signature, nil
}

// Close releases the agent socket, if this oracle dialed one.
func (o *AgentOracle) Close() error {
	if o.conn != nil {
		return o.conn.Close()
	}
	return nil
}
