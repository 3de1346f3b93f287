// Package tty_test tries to test ttys.
//
// The test is skipped when stdin is not a terminal (ErrNoTTY). Notably, this includes when run
// with "go test" because it redirects tests' standard input/output streams. You can test it by
// building a test binary and running it directly:
//
//	$ go test -c && ./tty.test
package tty_test

import (
	"errors"
	"os"
	"testing"

	"rvvm/internal/tty"
)

func TestNewConsole(t *testing.T) {
	console, err := tty.NewConsole(os.Stdin, os.Stdout, "(rvvm) ")
	if errors.Is(err, tty.ErrNoTTY) {
		t.Skipf("error: %s", err)
	}
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	defer func() {
		if err := console.Restore(); err != nil {
			t.Errorf("restore: %s", err)
		}
	}()

	console.Printf("hello\n")
}
