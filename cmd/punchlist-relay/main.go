// Package main provides the punchlist-relay daemon entrypoint.
//
// Usage:
//
//	punchlist-relay relay [options]
//
// The same daemon is reachable as `punchlist relay`; this binary exists
// so the relay can be installed and supervised on its own.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/cli/cmd"
	"github.com/shiggityshwah/punchlist/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:           "punchlist-relay",
		Usage:          "Relay daemon routing messages between punchlist surfaces",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RelayCommand(),
			cmd.VersionCommand("", commit),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := app.RunContext(ctx, os.Args); err != nil {
		// ExitErrHandler already handled the exit
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, respecting cli.ExitCoder.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
