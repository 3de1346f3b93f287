// cmd/rvvm is the command-line interface to RVVM, a RISC-V hardware execution core.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rvvm/internal/cli"
	"rvvm/internal/cli/cmd"
)

var (
	commands = []cli.Command{
		cmd.Run(),
		cmd.Step(),
		cmd.Version(),
	}
)

// Entry point.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result :=
		cli.New(ctx).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
