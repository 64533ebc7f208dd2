// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

// sk8brd-cli is the non-interactive board-farm client for CI: it lists
// the farm's boards, or claims a board and uploads a boot image, and
// exits with a code that tells a script which phase failed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/sk8brd/sk8brd/cmd/sk8brd/cli"
	"github.com/sk8brd/sk8brd/lib/bootimage"
	"github.com/sk8brd/sk8brd/lib/config"
	"github.com/sk8brd/sk8brd/lib/rawterm"
	"github.com/sk8brd/sk8brd/lib/render"
	"github.com/sk8brd/sk8brd/lib/version"
	"github.com/sk8brd/sk8brd/protocol"
	"github.com/sk8brd/sk8brd/session"
)

func main() {
	os.Exit(cli.Report(os.Stderr, "sk8brd-cli", run(os.Args[1:], os.Stdout)))
}

// errDeadline is the cancellation cause when --timeout expires.
var errDeadline = fmt.Errorf("%w: run exceeded its time limit", protocol.ErrTimeout)

type flags struct {
	cli.Options
	timeout     time.Duration
	showVersion bool
}

func run(args []string, stdout io.Writer) error {
	var f flags
	command := &cli.Command{
		Name:    "sk8brd-cli",
		Summary: "Non-interactive board-farm client",
		Description: `Claim a board on a board farm and upload a boot image without an
interactive console. Without --board, list the farm's boards and exit.

Exit codes: 0 success, 1 internal error, 2 invalid input, 3 connection
failure or timeout, 4 protocol violation, 5 authentication failure,
6 upload failure, 130 interrupted.`,
		Usage: "sk8brd-cli --farm <host> [--board <board> --image <boot.img>] [flags]",
		Examples: []cli.Example{
			{Description: "List the farm's boards", Command: "sk8brd-cli -f farm.example.net"},
			{Description: "Upload a compressed image, echoing the console", Command: "sk8brd-cli -f farm.example.net -b db845c -i boot.img.zst -v"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sk8brd-cli", pflag.ContinueOnError)
			f.AddFlags(flagSet)
			flagSet.DurationVarP(&f.timeout, "timeout", "t", 0, "bound on the whole run (default from config, 60s)")
			flagSet.BoolVar(&f.showVersion, "version", false, "print version and exit")
			return flagSet
		},
	}
	command.Run = func(positional []string) error {
		if f.showVersion {
			fmt.Fprintln(stdout, "sk8brd-cli "+version.Full())
			return nil
		}
		if len(positional) > 0 {
			return cli.Validation("unexpected argument %q", positional[0])
		}
		return batch(command, &f, stdout)
	}
	return command.Execute(args)
}

func batch(command *cli.Command, f *flags, stdout io.Writer) error {
	cfg, err := f.Resolve(command.Changed)
	if err != nil {
		return err
	}
	timeout := cfg.BatchTimeout()
	if command.Changed("timeout") {
		if f.timeout <= 0 {
			return cli.Validation("--timeout must be positive, got %s", f.timeout)
		}
		timeout = f.timeout
	}

	logger := cli.NewCommandLogger(f.LogLevel(slog.LevelInfo)).With("command", "sk8brd-cli")
	printer := render.New(os.Stderr)
	printer.Status("sk8brd-cli %s", version.Short())

	signalCtx, stop := rawterm.SignalContext(context.Background(), session.ErrInterrupted)
	defer stop()
	ctx, cancel := context.WithTimeoutCause(signalCtx, timeout, errDeadline)
	defer cancel()

	oracle, closeOracle, err := cli.Oracle(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer closeOracle()

	sessionConfig := cli.SessionConfig(cfg, version.Client("sk8brd-cli"), logger)
	s, err := session.New(sessionConfig, oracle)
	if err != nil {
		return cli.Validation("%w", err)
	}

	if cfg.Board == "" {
		boards, err := session.RunListBoards(ctx, s)
		if err != nil {
			return deadline(ctx, err)
		}
		for _, board := range boards {
			fmt.Fprintln(stdout, board)
		}
		return nil
	}

	options, err := batchOptions(cfg, f.Verbose, printer, stdout)
	if err != nil {
		return err
	}
	if err := session.RunBatch(ctx, s, options); err != nil {
		return cli.DiagnoseRejectedBoard(ctx, deadline(ctx, err), sessionConfig, oracle)
	}
	if options.Image != nil {
		printer.Success("Image sent!")
	}
	printer.Status("Goodbye")
	return nil
}

// batchOptions loads the image and wires progress and console echo.
func batchOptions(cfg *config.Config, verbose bool, printer *render.Printer, stdout io.Writer) (session.BatchOptions, error) {
	var options session.BatchOptions
	path := cfg.ImagePath()
	if path == "" {
		return options, nil
	}
	image, err := bootimage.Load(path)
	if err != nil {
		return options, cli.Validation("%w", err)
	}
	printer.Status("Uploading %s", image.Describe())

	options.Image = image.Data
	options.Upload.Digest = image.Digest[:]
	if rawterm.IsTerminal(os.Stderr) {
		options.Upload.Progress = printer.Progress
	}
	options.Upload.Sink = func(frame protocol.Frame) {
		switch frame.Type {
		case protocol.TypeConsoleData:
			if verbose {
				stdout.Write(frame.Payload)
			}
		default:
			printer.Frame(frame)
		}
	}
	return options, nil
}

// deadline reports an expired --timeout as a timeout even when the
// session saw it only as a canceled context.
func deadline(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errDeadline) && !errors.Is(err, protocol.ErrTimeout) {
		return fmt.Errorf("%w (%w)", err, errDeadline)
	}
	return err
}
