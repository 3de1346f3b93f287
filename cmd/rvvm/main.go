// Command rvvm is the installable alias for the root module's CLI, so
// `go install rvvm/cmd/rvvm@latest` names a binary the way Go tooling
// expects (the root package is "main" but isn't itself installable by a
// short import path). Grounded on the teacher's cmd/elsie, a thin
// wrapper with no logic of its own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rvvm/internal/cli"
	"rvvm/internal/cli/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	commands := []cli.Command{
		cmd.Run(),
		cmd.Step(),
		cmd.Version(),
	}

	result :=
		cli.New(ctx).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
