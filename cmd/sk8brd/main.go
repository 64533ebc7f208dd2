// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// sk8brd opens an interactive console on a board-farm board: it
// authenticates with an ssh-agent or identity-file key, optionally
// uploads a boot image, then relays the local terminal to the board's
// serial console until the user quits with the escape prefix.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/sk8brd/sk8brd/cmd/sk8brd/cli"
	"github.com/sk8brd/sk8brd/console"
	"github.com/sk8brd/sk8brd/lib/bootimage"
	"github.com/sk8brd/sk8brd/lib/rawterm"
	"github.com/sk8brd/sk8brd/lib/render"
	"github.com/sk8brd/sk8brd/lib/version"
	"github.com/sk8brd/sk8brd/session"
)

func main() {
	os.Exit(cli.Report(os.Stderr, "sk8brd", run(os.Args[1:])))
}

type flags struct {
	cli.Options
	escape      string
	powerCycle  bool
	noPowerOff  bool
	showVersion bool
}

func run(args []string) error {
	var f flags
	command := &cli.Command{
		Name:    "sk8brd",
		Summary: "Interactive board-farm console",
		Description: `Connect to a board farm, claim a board, optionally upload a boot image,
and attach the terminal to the board's serial console.

Inside the console, the escape prefix (default Ctrl-A) followed by a key
sends a command instead of a keystroke:

` + console.DefaultKeybinds().Help(console.DefaultPrefix),
		Usage: "sk8brd --farm <host> --board <board> [--image <boot.img>] [flags]",
		Examples: []cli.Example{
			{Description: "Boot a kernel on a db845c", Command: "sk8brd -f farm.example.net -b db845c -i boot.img"},
			{Description: "Power-cycle and watch the console, leaving the board on", Command: "sk8brd -b rb3 --power-cycle --no-power-off"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sk8brd", pflag.ContinueOnError)
			f.AddFlags(flagSet)
			flagSet.StringVarP(&f.escape, "escape", "e", "", "escape prefix, e.g. ^A or C-b (default from config, ^A)")
			flagSet.BoolVar(&f.powerCycle, "power-cycle", false, "power the board off and on when the console opens")
			flagSet.BoolVar(&f.noPowerOff, "no-power-off", false, "leave the board powered when quitting")
			flagSet.BoolVar(&f.showVersion, "version", false, "print version and exit")
			return flagSet
		},
	}
	command.Run = func(positional []string) error {
		if f.showVersion {
			fmt.Println("sk8brd " + version.Full())
			return nil
		}
		if len(positional) > 0 {
			return cli.Validation("unexpected argument %q", positional[0])
		}
		return interactive(command, &f)
	}
	return command.Execute(args)
}

func interactive(command *cli.Command, f *flags) error {
	cfg, err := f.Resolve(command.Changed)
	if err != nil {
		return err
	}
	if command.Changed("escape") {
		cfg.Console.EscapePrefix = f.escape
	}
	if command.Changed("power-cycle") {
		cfg.Console.PowerCycle = f.powerCycle
	}
	if command.Changed("no-power-off") {
		cfg.Console.PowerOffOnExit = !f.noPowerOff
	}
	if cfg.Board == "" {
		return cli.Validation("no board given").
			WithHint("Pass --board <board>; run sk8brd-cli without --board to list the farm's boards.")
	}
	prefix, err := console.ParsePrefix(cfg.Console.EscapePrefix)
	if err != nil {
		return cli.Validation("%w", err)
	}

	logger := cli.NewCommandLogger(f.LogLevel(slog.LevelWarn)).With("command", "sk8brd")
	printer := render.New(os.Stderr)

	var image *bootimage.Image
	if path := cfg.ImagePath(); path != "" {
		image, err = bootimage.Load(path)
		if err != nil {
			return cli.Validation("%w", err)
		}
	}

	ctx, stop := rawterm.SignalContext(context.Background(), session.ErrInterrupted)
	defer stop()

	oracle, closeOracle, err := cli.Oracle(ctx, cfg, cli.TerminalPrompt, logger)
	if err != nil {
		return err
	}
	defer closeOracle()

	input, err := rawterm.NewInput(os.Stdin)
	if err != nil {
		return cli.Internal("%w", err)
	}
	defer input.Close()

	// Raw mode starts with the console phase so Ctrl-C still interrupts
	// the handshake and the upload.
	restore := func() error { return nil }
	leaveRaw := func() {
		if err := restore(); err != nil {
			logger.Warn("restoring terminal", "error", err)
		}
		printer.SetRaw(false)
	}
	defer leaveRaw()

	sessionConfig := cli.SessionConfig(cfg, version.Client("sk8brd"), logger)
	sessionConfig.OnTransition = func(from, to session.State) {
		switch to {
		case session.Authenticating:
			printer.Status("Connected to %s", cfg.Address())
		case session.Uploading:
			printer.Status("Uploading %s", image.Describe())
		case session.Interactive:
			if from == session.Uploading {
				printer.Success("Image sent!")
			}
			printer.Status("Console attached to %s; %s q quits", cfg.Board, console.FormatPrefix(prefix))
			entered, err := rawterm.Enter(os.Stdin)
			if err != nil {
				logger.Warn("raw mode unavailable", "error", err)
				return
			}
			restore = entered
			printer.SetRaw(true)
		}
	}
	s, err := session.New(sessionConfig, oracle)
	if err != nil {
		return cli.Validation("%w", err)
	}

	options := session.InteractiveOptions{
		Console: console.Config{
			Input:      input,
			Output:     os.Stdout,
			Status:     printer.Frame,
			Dispatcher: console.NewDispatcher(prefix, console.DefaultKeybinds()),
			Logger:     logger,
		},
		PowerCycle:     cfg.Console.PowerCycle,
		PowerOffOnExit: cfg.Console.PowerOffOnExit,
	}
	if image != nil {
		options.Image = image.Data
		options.Upload = session.UploadOptions{Digest: image.Digest[:], Progress: printer.Progress}
	}

	printer.Status("sk8brd %s", version.Short())
	outcome, err := session.RunInteractive(ctx, s, options)
	leaveRaw()
	if err != nil {
		return cli.DiagnoseRejectedBoard(ctx, err, sessionConfig, oracle)
	}
	if outcome == console.OutcomeRemoteClosed {
		printer.Status("Connection closed by the board farm")
	}
	printer.Status("Goodbye")
	return nil
}
