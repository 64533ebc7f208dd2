// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/sk8brd/sk8brd/auth"
	"github.com/sk8brd/sk8brd/lib/config"
	"github.com/sk8brd/sk8brd/session"
)

// Options holds the flags shared by both front-ends. Flags override the
// configuration file only when given on the command line.
type Options struct {
	ConfigPath   string
	Farm         string
	Port         int
	User         string
	Board        string
	Image        string
	Key          string
	IdentityFile string
	Verbose      bool
}

// AddFlags registers the shared flags on flagSet.
func (o *Options) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&o.ConfigPath, "config", "c", "", "configuration file (default $"+config.EnvironmentVariable+")")
	flagSet.StringVarP(&o.Farm, "farm", "f", "", "board farm host, or host:port")
	flagSet.IntVarP(&o.Port, "port", "p", 0, "board farm port (default "+session.DefaultPort+")")
	flagSet.StringVarP(&o.User, "user", "u", "", "farm user (default $USER)")
	flagSet.StringVarP(&o.Board, "board", "b", "", "board to claim")
	flagSet.StringVarP(&o.Image, "image", "i", "", "boot image to upload (raw, zstd or lz4)")
	flagSet.StringVar(&o.Key, "key", "", "SHA256 fingerprint of the key to try first")
	flagSet.StringVar(&o.IdentityFile, "identity", "", "OpenSSH private key to use besides ssh-agent")
	flagSet.BoolVarP(&o.Verbose, "verbose", "v", false, "debug logging")
}

// Resolve loads the configuration file (--config, else $SK8BRD_CONFIG,
// else built-in defaults) and applies the flags for which changed
// reports true. A farm host is required.
func (o *Options) Resolve(changed func(name string) bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.LoadFile(o.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, Validation("%w", err)
	}

	if changed("farm") {
		host, port, splitErr := net.SplitHostPort(o.Farm)
		if splitErr != nil {
			cfg.Farm.Host = strings.TrimSuffix(strings.TrimPrefix(o.Farm, "["), "]")
		} else {
			number, parseErr := strconv.Atoi(port)
			if parseErr != nil {
				return nil, Validation("--farm %q: invalid port", o.Farm)
			}
			cfg.Farm.Host, cfg.Farm.Port = host, number
		}
	}
	if changed("port") {
		cfg.Farm.Port = o.Port
	}
	if changed("user") {
		cfg.Farm.User = o.User
	}
	if changed("board") {
		cfg.Board = o.Board
	}
	if changed("image") {
		cfg.Image = o.Image
	}
	if changed("key") {
		cfg.Key.Preferred = o.Key
	}
	if changed("identity") {
		cfg.Key.IdentityFile = o.IdentityFile
	}

	if cfg.Farm.Host == "" {
		return nil, Validation("no board farm given").
			WithHint("Pass --farm <host> or set farm.host in the configuration file.")
	}
	if err := cfg.Validate(); err != nil {
		return nil, Validation("%w", err)
	}
	return cfg, nil
}

// LogLevel is Debug with --verbose and base otherwise.
func (o *Options) LogLevel(base slog.Level) slog.Level {
	if o.Verbose {
		return slog.LevelDebug
	}
	return base
}

// SessionConfig builds the session configuration for cfg.
func SessionConfig(cfg *config.Config, client string, logger *slog.Logger) session.Config {
	return session.Config{
		Address:            cfg.Address(),
		User:               cfg.Farm.User,
		Board:              cfg.Board,
		Client:             client,
		PreferredKey:       cfg.Key.Preferred,
		ConnectTimeout:     cfg.ConnectTimeout(),
		ReplyTimeout:       cfg.ReplyTimeout(),
		UploadReplyTimeout: cfg.UploadTimeout(),
		ChunkSize:          cfg.Upload.ChunkSize,
		Window:             cfg.Upload.Window,
		Logger:             logger,
	}
}

// PassphrasePrompt asks for an identity file passphrase.
type PassphrasePrompt func(path string) ([]byte, error)

// TerminalPrompt reads a passphrase from the controlling terminal
// without echo. It fails when stdin is not a terminal.
func TerminalPrompt(path string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "Enter passphrase for %s: ", path)
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return passphrase, err
}

// Oracle assembles the signing oracle: ssh-agent keys first, then the
// identity file. The returned close function releases the agent
// connection. prompt may be nil, in which case encrypted identity files
// are an error.
func Oracle(ctx context.Context, cfg *config.Config, prompt PassphrasePrompt, logger *slog.Logger) (auth.SigningOracle, func(), error) {
	var (
		oracles []auth.SigningOracle
		closers []func() error
	)
	closeAll := func() {
		for _, closer := range closers {
			closer()
		}
	}

	agentOracle, err := auth.DialAgent(ctx)
	switch {
	case err == nil:
		oracles = append(oracles, agentOracle)
		closers = append(closers, agentOracle.Close)
	case errors.Is(err, auth.ErrNoAgent):
		logger.Debug("no ssh-agent")
	default:
		logger.Warn("ssh-agent unavailable", "error", err)
	}

	if cfg.Key.IdentityFile != "" {
		path := config.Expand(cfg.Key.IdentityFile)
		signer, err := auth.LoadIdentityFile(path, nil)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && prompt != nil {
			passphrase, promptErr := prompt(path)
			if promptErr != nil {
				closeAll()
				return nil, nil, Validation("reading passphrase for %s: %w", path, promptErr)
			}
			signer, err = auth.LoadIdentityFile(path, passphrase)
		}
		if err != nil {
			closeAll()
			return nil, nil, Validation("%w", err)
		}
		oracles = append(oracles, auth.NewSignerOracle(signer))
	}

	if len(oracles) == 0 {
		return nil, nil, Auth("%w: no ssh-agent and no identity file", auth.ErrNoValidKey).
			WithHint("Start ssh-agent and add a key (ssh-add), or pass --identity <file>.")
	}
	return auth.Chain(oracles...), closeAll, nil
}
