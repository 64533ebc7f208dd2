// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Command is a top-level CLI command.
type Command struct {
	// Name is the binary name (e.g., "sk8brd").
	Name string

	// Summary is a one-line description.
	Summary string

	// Description is a detailed multi-line description shown in help
	// output.
	Description string

	// Usage is the usage string. If empty, "<name> [flags]" is used.
	Usage string

	// Examples are shown in the help output after the flags.
	Examples []Example

	// Flags returns a configured *pflag.FlagSet for this command. Called
	// once per Execute and once per PrintHelp. If nil, the command
	// accepts no flags.
	Flags func() *pflag.FlagSet

	// Run executes the command with the positional args left after flag
	// parsing.
	Run func(args []string) error

	// HelpOutput receives help text. Nil means os.Stderr.
	HelpOutput io.Writer

	parsed *pflag.FlagSet
}

// Example is a usage example shown in help output.
type Example struct {
	// Description explains what the example does.
	Description string
	// Command is the literal command line.
	Command string
}

// Execute parses args and calls Run.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.helpOutput())
		return nil
	}

	if c.Flags != nil {
		flagSet := c.Flags()

		// pflag's own error output and usage dump are replaced by the
		// messages below.
		flagSet.SetOutput(io.Discard)

		if err := flagSet.Parse(args); err != nil {
			if err == pflag.ErrHelp {
				c.PrintHelp(c.helpOutput())
				return nil
			}
			errMsg := err.Error()
			if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown shorthand flag") {
				// A fresh FlagSet for the lookup; the failed parse may
				// have consumed state.
				if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
					return Validation("%s (did you mean %s?)\n\nRun '%s --help' for usage.",
						errMsg, suggestion, c.Name)
				}
			}
			return Validation("%s\n\nRun '%s --help' for usage.", errMsg, c.Name)
		}
		c.parsed = flagSet
		args = flagSet.Args()
	}

	if c.Run == nil {
		c.PrintHelp(c.helpOutput())
		return Internal("no action defined for %q", c.Name)
	}
	return c.Run(args)
}

// Changed reports whether the named flag was set on the command line
// during the current Execute.
func (c *Command) Changed(name string) bool {
	return c.parsed != nil && c.parsed.Changed(name)
}

// PrintHelp writes structured help output to w.
func (c *Command) PrintHelp(w io.Writer) {
	if c.Description != "" {
		fmt.Fprintf(w, "%s\n\n", c.Description)
	} else if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	if c.Usage != "" {
		fmt.Fprintf(w, "Usage:\n  %s\n", c.Usage)
	} else {
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", c.Name)
	}

	if c.Flags != nil {
		flagSet := c.Flags()
		if usage := flagSet.FlagUsages(); usage != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usage)
		}
	}

	if len(c.Examples) > 0 {
		fmt.Fprintf(w, "\nExamples:\n")
		for _, example := range c.Examples {
			if example.Description != "" {
				fmt.Fprintf(w, "  # %s\n", example.Description)
			}
			fmt.Fprintf(w, "  %s\n", example.Command)
			if example.Description != "" {
				fmt.Fprintln(w)
			}
		}
	}
}

func (c *Command) helpOutput() io.Writer {
	if c.HelpOutput != nil {
		return c.HelpOutput
	}
	return os.Stderr
}

// isHelpFlag returns true for common help flag variants.
func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
