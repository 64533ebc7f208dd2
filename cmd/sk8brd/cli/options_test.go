// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh"

	"github.com/sk8brd/sk8brd/auth"
	"github.com/sk8brd/sk8brd/lib/config"
	"github.com/sk8brd/sk8brd/session"
)

func parseOptions(t *testing.T, args ...string) (*Options, func(string) bool) {
	t.Helper()
	var options Options
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	options.AddFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return &options, flagSet.Changed
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestResolve_FlagsOverrideConfig(t *testing.T) {
	path := writeFile(t, "sk8brd.yaml", "farm:\n  host: lab\n  port: 9000\nboard: rb3\nkey:\n  preferred: SHA256:file\n")
	options, changed := parseOptions(t, "--config", path, "-b", "db845c", "--key", "SHA256:flag")

	cfg, err := options.Resolve(changed)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Address() != "lab:9000" {
		t.Errorf("Address = %q, want lab:9000", cfg.Address())
	}
	if cfg.Board != "db845c" || cfg.Key.Preferred != "SHA256:flag" {
		t.Errorf("flags not applied: board=%q key=%q", cfg.Board, cfg.Key.Preferred)
	}
}

func TestResolve_FarmWithPort(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	options, changed := parseOptions(t, "--farm", "10.0.0.4:7000", "-u", "bob")

	cfg, err := options.Resolve(changed)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Address() != "10.0.0.4:7000" || cfg.Farm.User != "bob" {
		t.Errorf("Address=%q User=%q", cfg.Address(), cfg.Farm.User)
	}

	sessionConfig := SessionConfig(cfg, "sk8brd/test", slog.New(slog.DiscardHandler))
	if sessionConfig.Address != "10.0.0.4:7000" || sessionConfig.Client != "sk8brd/test" {
		t.Errorf("session config = %+v", sessionConfig)
	}
	if sessionConfig.ConnectTimeout != 10*time.Second || sessionConfig.Window != 8 {
		t.Errorf("session config defaults = %+v", sessionConfig)
	}
}

func TestResolve_FarmIPv6(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")

	tests := []struct {
		farm string
		want string
	}{
		{"[::1]:7000", "[::1]:7000"},
		{"[::1]", "[::1]:7272"},
		{"::1", "[::1]:7272"},
		{"fd00::4", "[fd00::4]:7272"},
	}
	for _, test := range tests {
		t.Run(test.farm, func(t *testing.T) {
			options, changed := parseOptions(t, "--farm", test.farm)
			cfg, err := options.Resolve(changed)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if cfg.Address() != test.want {
				t.Errorf("Address = %q, want %q", cfg.Address(), test.want)
			}
			sessionConfig := SessionConfig(cfg, "sk8brd/test", slog.New(slog.DiscardHandler))
			s, err := session.New(sessionConfig, auth.NewSignerOracle())
			if err != nil {
				t.Fatalf("session.New: %v", err)
			}
			if s.Address() != test.want {
				t.Errorf("session address = %q, want %q", s.Address(), test.want)
			}
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")

	tests := []struct {
		name string
		args []string
	}{
		{"no farm", nil},
		{"bad port in farm", []string{"--farm", "lab:http"}},
		{"port out of range", []string{"--farm", "lab", "--port", "99999"}},
		{"missing config", []string{"--config", "/nonexistent/sk8brd.yaml", "--farm", "lab"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			options, changed := parseOptions(t, test.args...)
			_, err := options.Resolve(changed)
			var toolErr *ToolError
			if !errors.As(err, &toolErr) || toolErr.Category != CategoryValidation {
				t.Errorf("Resolve = %v, want validation ToolError", err)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	options, _ := parseOptions(t)
	if options.LogLevel(slog.LevelWarn) != slog.LevelWarn {
		t.Error("LogLevel without --verbose should be the base level")
	}
	options, _ = parseOptions(t, "-v")
	if options.LogLevel(slog.LevelWarn) != slog.LevelDebug {
		t.Error("LogLevel with --verbose should be Debug")
	}
}

func writeIdentity(t *testing.T, passphrase []byte) string {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var block *pem.Block
	if passphrase == nil {
		block, err = ssh.MarshalPrivateKey(private, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(private, "test", passphrase)
	}
	if err != nil {
		t.Fatalf("MarshalPrivateKey: %v", err)
	}
	return writeFile(t, "id_ed25519", string(pem.EncodeToMemory(block)))
}

func TestOracle(t *testing.T) {
	// No agent, so only identity files can produce keys.
	t.Setenv("SSH_AUTH_SOCK", "")
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	t.Run("no keys", func(t *testing.T) {
		_, _, err := Oracle(ctx, config.Default(), nil, logger)
		if !errors.Is(err, auth.ErrNoValidKey) {
			t.Errorf("Oracle = %v, want ErrNoValidKey", err)
		}
		if Classify(err).Category != CategoryAuth {
			t.Errorf("category = %q, want auth", Classify(err).Category)
		}
	})

	t.Run("identity file", func(t *testing.T) {
		cfg := config.Default()
		cfg.Key.IdentityFile = writeIdentity(t, nil)
		oracle, closeOracle, err := Oracle(ctx, cfg, nil, logger)
		if err != nil {
			t.Fatalf("Oracle: %v", err)
		}
		defer closeOracle()
		keys, err := oracle.ListKeys(ctx)
		if err != nil || len(keys) != 1 {
			t.Errorf("ListKeys = %d keys, %v; want 1", len(keys), err)
		}
	})

	t.Run("encrypted identity prompts", func(t *testing.T) {
		cfg := config.Default()
		cfg.Key.IdentityFile = writeIdentity(t, []byte("hunter2"))
		prompted := ""
		prompt := func(path string) ([]byte, error) {
			prompted = path
			return []byte("hunter2"), nil
		}
		oracle, closeOracle, err := Oracle(ctx, cfg, prompt, logger)
		if err != nil {
			t.Fatalf("Oracle: %v", err)
		}
		defer closeOracle()
		if prompted != cfg.Key.IdentityFile {
			t.Errorf("prompted for %q, want %q", prompted, cfg.Key.IdentityFile)
		}
		if keys, _ := oracle.ListKeys(ctx); len(keys) != 1 {
			t.Errorf("ListKeys = %d keys, want 1", len(keys))
		}
	})

	t.Run("encrypted identity without prompt", func(t *testing.T) {
		cfg := config.Default()
		cfg.Key.IdentityFile = writeIdentity(t, []byte("hunter2"))
		_, _, err := Oracle(ctx, cfg, nil, logger)
		if Classify(err).Category != CategoryValidation {
			t.Errorf("Oracle = %v, want validation error", err)
		}
	})
}
