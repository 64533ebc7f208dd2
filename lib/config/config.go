// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "SK8BRD_CONFIG"

// Config is the client configuration.
type Config struct {
	// Farm locates the board-farm daemon.
	Farm FarmConfig `yaml:"farm"`

	// Board is the default board id when none is given on the command
	// line.
	Board string `yaml:"board"`

	// Image is the default boot image path. ${VAR} patterns are expanded.
	Image string `yaml:"image"`

	// Key selects the identity used to authenticate.
	Key KeyConfig `yaml:"key"`

	// Console configures the interactive console.
	Console ConsoleConfig `yaml:"console"`

	// Upload configures image transfer.
	Upload UploadConfig `yaml:"upload"`

	// Timeouts are Go duration strings ("10s", "2m").
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// FarmConfig locates the daemon.
type FarmConfig struct {
	// Host is a host name or IP address.
	Host string `yaml:"host"`

	// Port is the daemon's TCP port.
	// Default: 7272
	Port int `yaml:"port"`

	// User is the identity announced in Hello. Default: $USER.
	User string `yaml:"user"`
}

// KeyConfig selects signing keys.
type KeyConfig struct {
	// Preferred is a SHA256 key fingerprint tried first.
	Preferred string `yaml:"preferred"`

	// IdentityFile is an OpenSSH private key used in addition to the
	// agent's keys.
	IdentityFile string `yaml:"identity_file"`
}

// ConsoleConfig configures the interactive console.
type ConsoleConfig struct {
	// EscapePrefix is the command prefix in caret ("^A"), emacs ("C-a")
	// or hex ("0x01") notation.
	// Default: ^A
	EscapePrefix string `yaml:"escape_prefix"`

	// PowerOffOnExit powers the board off when the console quits.
	// Default: true
	PowerOffOnExit bool `yaml:"power_off_on_exit"`

	// PowerCycle powers the board off and on when the console opens.
	PowerCycle bool `yaml:"power_cycle"`
}

// UploadConfig configures image transfer.
type UploadConfig struct {
	// ChunkSize is the DataChunk payload size in bytes.
	// Default: 8192
	ChunkSize int `yaml:"chunk_size"`

	// Window is the number of unacknowledged chunks allowed in flight.
	// Default: 8
	Window int `yaml:"window"`
}

// TimeoutsConfig holds duration strings.
type TimeoutsConfig struct {
	// Connect bounds dialing the daemon. Default: 10s
	Connect string `yaml:"connect"`

	// Reply bounds each wait for a daemon reply during authentication.
	// Default: 30s
	Reply string `yaml:"reply"`

	// Upload bounds each wait for a ChunkAck or UploadResult.
	// Default: 60s
	Upload string `yaml:"upload"`

	// Batch bounds a whole non-interactive run.
	// Default: 60s
	Batch string `yaml:"batch"`
}

// Default returns the built-in configuration. LoadFile merges the file
// onto these values.
func Default() *Config {
	return &Config{
		Farm: FarmConfig{
			Port: 7272,
			User: os.Getenv("USER"),
		},
		Console: ConsoleConfig{
			EscapePrefix:   "^A",
			PowerOffOnExit: true,
		},
		Upload: UploadConfig{
			ChunkSize: 8192,
			Window:    8,
		},
		Timeouts: TimeoutsConfig{
			Connect: "10s",
			Reply:   "30s",
			Upload:  "60s",
			Batch:   "60s",
		},
	}
}

// Load loads the file named by SK8BRD_CONFIG. When the variable is unset
// it returns Default with no error.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// Re-encoded as YAML so the yaml field tags apply to both forms.
		var document any
		if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
			return err
		}
		if data, err = yaml.Marshal(document); err != nil {
			return err
		}
	}
	return yaml.Unmarshal(data, c)
}

// Address returns host:port, or "" when no host is configured.
func (c *Config) Address() string {
	if c.Farm.Host == "" {
		return ""
	}
	return net.JoinHostPort(c.Farm.Host, strconv.Itoa(c.Farm.Port))
}

// ImagePath returns the configured image path with variables expanded.
func (c *Config) ImagePath() string {
	return Expand(c.Image)
}

// ConnectTimeout returns Timeouts.Connect. The value has been validated
// by LoadFile; a malformed one yields zero.
func (c *Config) ConnectTimeout() time.Duration { return parseDuration(c.Timeouts.Connect) }

// ReplyTimeout returns Timeouts.Reply.
func (c *Config) ReplyTimeout() time.Duration { return parseDuration(c.Timeouts.Reply) }

// UploadTimeout returns Timeouts.Upload.
func (c *Config) UploadTimeout() time.Duration { return parseDuration(c.Timeouts.Upload) }

// BatchTimeout returns Timeouts.Batch.
func (c *Config) BatchTimeout() time.Duration { return parseDuration(c.Timeouts.Batch) }

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Expand replaces ${VAR} and ${VAR:-default} with values from the
// environment. An unset or empty variable without a default expands to "".
func Expand(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Farm.Port <= 0 || c.Farm.Port > 65535 {
		errs = append(errs, fmt.Errorf("farm.port %d out of range", c.Farm.Port))
	}
	if c.Console.EscapePrefix == "" {
		errs = append(errs, errors.New("console.escape_prefix is required"))
	}
	if c.Upload.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("upload.chunk_size must be positive, got %d", c.Upload.ChunkSize))
	}
	if c.Upload.Window <= 0 {
		errs = append(errs, fmt.Errorf("upload.window must be positive, got %d", c.Upload.Window))
	}

	timeouts := []struct {
		name  string
		value string
	}{
		{"timeouts.connect", c.Timeouts.Connect},
		{"timeouts.reply", c.Timeouts.Reply},
		{"timeouts.upload", c.Timeouts.Upload},
		{"timeouts.batch", c.Timeouts.Batch},
	}
	for _, timeout := range timeouts {
		d, err := time.ParseDuration(timeout.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", timeout.name, err))
			continue
		}
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", timeout.name, timeout.value))
		}
	}

	return errors.Join(errs...)
}
