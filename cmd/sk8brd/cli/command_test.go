// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func newTestCommand(board *string, verbose *bool, ran *[]string) *Command {
	return &Command{
		Name:        "sk8brd",
		Description: "Open a console on a board farm board.",
		Examples: []Example{
			{Description: "Boot a kernel on db845c", Command: "sk8brd -f farm -b db845c -i boot.img"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sk8brd", pflag.ContinueOnError)
			flagSet.StringVarP(board, "board", "b", "", "board to claim")
			flagSet.BoolVarP(verbose, "verbose", "v", false, "debug logging")
			return flagSet
		},
		Run: func(args []string) error {
			*ran = args
			return nil
		},
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var (
		board   string
		verbose bool
		ran     []string
	)
	command := newTestCommand(&board, &verbose, &ran)

	if err := command.Execute([]string{"-b", "db845c", "--verbose", "extra"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if board != "db845c" || !verbose {
		t.Errorf("board=%q verbose=%v", board, verbose)
	}
	if len(ran) != 1 || ran[0] != "extra" {
		t.Errorf("args = %v, want [extra]", ran)
	}
	if !command.Changed("board") {
		t.Error("Changed(board) = false after -b")
	}
	if command.Changed("nonexistent") {
		t.Error("Changed(nonexistent) = true")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	var (
		board   string
		verbose bool
		ran     []string
	)
	command := newTestCommand(&board, &verbose, &ran)

	err := command.Execute([]string{"--bord", "x"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --board?") {
		t.Errorf("error %q lacks suggestion", err)
	}
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != CategoryValidation {
		t.Errorf("error %v is not a validation ToolError", err)
	}
	if ran != nil {
		t.Error("Run called despite parse failure")
	}
}

func TestCommand_Execute_Help(t *testing.T) {
	for _, arg := range []string{"-h", "--help", "help"} {
		t.Run(arg, func(t *testing.T) {
			var (
				board   string
				verbose bool
				ran     []string
				help    bytes.Buffer
			)
			command := newTestCommand(&board, &verbose, &ran)
			command.HelpOutput = &help

			if err := command.Execute([]string{arg}); err != nil {
				t.Fatalf("Execute(%s): %v", arg, err)
			}
			if ran != nil {
				t.Error("Run called for help")
			}
			output := help.String()
			for _, want := range []string{
				"Open a console on a board farm board.",
				"Usage:\n  sk8brd [flags]",
				"-b, --board string",
				"# Boot a kernel on db845c",
			} {
				if !strings.Contains(output, want) {
					t.Errorf("help output missing %q:\n%s", want, output)
				}
			}
		})
	}
}

func TestCommand_Execute_NoRun(t *testing.T) {
	command := &Command{Name: "empty", HelpOutput: &bytes.Buffer{}}
	err := command.Execute(nil)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Category != CategoryInternal {
		t.Errorf("Execute without Run = %v, want internal ToolError", err)
	}
}
