package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"runtime/debug"

	"rvvm/internal/cli"
	"rvvm/internal/log"
)

// Version returns the "version" sub-command: print the module's build
// info, the way a small Go CLI reports its provenance without baking in
// a hand-maintained version string.
func Version() cli.Command {
	return new(version)
}

type version struct{}

func (version) Description() string { return "print build information" }

func (version) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `version

Print the module path, version, and VCS revision embedded at build time.`)
	return err
}

func (version) FlagSet() *flag.FlagSet {
	return flag.NewFlagSet("version", flag.ExitOnError)
}

func (version) Run(_ context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Fprintln(out, "rvvm: build information unavailable")
		return 1
	}

	fmt.Fprintf(out, "%s %s\n", info.Main.Path, info.Main.Version)

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision", "vcs.time", "vcs.modified":
			fmt.Fprintf(out, "  %s=%s\n", setting.Key, setting.Value)
		}
	}

	return 0
}
