// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// Key is one candidate identity offered by a SigningOracle.
type Key struct {
	// ID is the SHA256 fingerprint ("SHA256:...").
	ID string

	// PublicKey is the key itself; its wire encoding goes into the
	// Response so the daemon can match authorized keys directly.
	PublicKey ssh.PublicKey

	// Comment is the agent or file comment, for log messages only.
	Comment string
}

// NewKey builds a Key from a public key.
func NewKey(publicKey ssh.PublicKey, comment string) Key {
	return Key{
		ID:        ssh.FingerprintSHA256(publicKey),
		PublicKey: publicKey,
		Comment:   comment,
	}
}

// SigningOracle lists candidate keys and signs challenge nonces with
// them without exposing private material.
type SigningOracle interface {
	// ListKeys returns the candidate keys in the order they should be
	// tried. An empty list is not an error.
	ListKeys(ctx context.Context) ([]Key, error)

	// Sign signs nonce with the key identified by key.ID.
	Sign(ctx context.Context, key Key, nonce []byte) (*ssh.Signature, error)
}

// OrderKeys returns keys with the one whose fingerprint equals preferred
// moved to the front. The relative order of the rest is unchanged, so the
// sequence is deterministic for a given oracle listing.
func OrderKeys(keys []Key, preferred string) []Key {
	ordered := make([]Key, 0, len(keys))
	if preferred != "" {
		for _, key := range keys {
			if key.ID == preferred {
				ordered = append(ordered, key)
			}
		}
	}
	for _, key := range keys {
		if preferred == "" || key.ID != preferred {
			ordered = append(ordered, key)
		}
	}
	return ordered
}

// SignerOracle signs with in-process ssh.Signers, in the order given.
type SignerOracle struct {
	signers []ssh.Signer
}

// NewSignerOracle wraps signers.
func NewSignerOracle(signers ...ssh.Signer) *SignerOracle {
	return &SignerOracle{signers: signers}
}

// LoadIdentityFile parses an OpenSSH private key file. Encrypted keys need
// passphrase; unencrypted keys ignore it.
func LoadIdentityFile(path string, passphrase []byte) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && len(passphrase) > 0 {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, passphrase)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	return signer, nil
}

// ListKeys returns one Key per signer.
func (o *SignerOracle) ListKeys(context.Context) ([]Key, error) {
	keys := make([]Key, 0, len(o.signers))
	for _, signer := range o.signers {
		keys = append(keys, NewKey(signer.PublicKey(), ""))
	}
	return keys, nil
}

// Sign signs nonce with the signer matching key. RSA keys sign with
// rsa-sha2-256 rather than the SHA-1 based ssh-rsa algorithm.
func (o *SignerOracle) Sign(_ context.Context, key Key, nonce []byte) (*ssh.Signature, error) {
	for _, signer := range o.signers {
		if ssh.FingerprintSHA256(signer.PublicKey()) != key.ID {
			continue
		}
		if algorithmSigner, ok := signer.(ssh.AlgorithmSigner); ok && signer.PublicKey().Type() == ssh.KeyAlgoRSA {
			return algorithmSigner.SignWithAlgorithm(rand.Reader, nonce, ssh.KeyAlgoRSASHA256)
		}
		return signer.Sign(rand.Reader, nonce)
	}
	return nil, fmt.Errorf("no signer for key %s", key.ID)
}

// ChainOracle consults several oracles in turn: keys from the first
// come first. Signing is routed back to the oracle that listed the key.
type ChainOracle struct {
	oracles []SigningOracle
	owners  map[string]SigningOracle
}

// Chain combines oracles.
func Chain(oracles ...SigningOracle) *ChainOracle {
	return &ChainOracle{oracles: oracles, owners: make(map[string]SigningOracle)}
}

// ListKeys concatenates the listings. An oracle that fails to list is
// skipped as long as another one produces keys; if every oracle fails,
// the first error is returned.
func (c *ChainOracle) ListKeys(ctx context.Context) ([]Key, error) {
	var keys []Key
	var firstErr error
	listed := false
	for _, oracle := range c.oracles {
		oracleKeys, err := oracle.ListKeys(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		listed = true
		for _, key := range oracleKeys {
			if _, seen := c.owners[key.ID]; seen {
				continue
			}
			c.owners[key.ID] = oracle
			keys = append(keys, key)
		}
	}
	if !listed && firstErr != nil {
		return nil, firstErr
	}
	return keys, nil
}

// Sign delegates to the oracle that listed key.
func (c *ChainOracle) Sign(ctx context.Context, key Key, nonce []byte) (*ssh.Signature, error) {
	oracle, ok := c.owners[key.ID]
	if !ok {
		return nil, fmt.Errorf("key %s was not listed by any oracle", key.ID)
	}
	return oracle.Sign(ctx, key, nonce)
}
