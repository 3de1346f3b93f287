// Package tty provides terminal emulation for the interactive monitor.
package tty

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// ErrNoTTY is returned if standard input is not a terminal. In this case, the monitor's
// interactive REPL cannot be started.
var ErrNoTTY error = errors.New("console: not a TTY")

// Console is a line-oriented terminal session used by the step monitor's REPL. It adapts the
// machine-independent raw-terminal machinery the teacher built for its keyboard/display console
// into a prompt-and-readline console for entering monitor commands.
//
// Grounded on the teacher's internal/tty.Console (raw mode via golang.org/x/term, restore-on-exit
// discipline), stripped of the keyboard/display plumbing that doesn't apply to a command REPL and
// replaced with *term.Terminal's line editor.
type Console struct {
	fd    int
	state *term.State
	term  *term.Terminal
}

// NewConsole creates a Console reading lines from in and writing prompts/output to out. If in is
// not a terminal, ErrNoTTY is returned.
func NewConsole(in, out *os.File, prompt string) (*Console, error) {
	fd := int(in.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	return &Console{
		fd:    fd,
		state: saved,
		term:  term.NewTerminal(readWriter{in, out}, prompt),
	}, nil
}

// ReadLine reads one command line from the console, blocking until the user presses Enter or the
// terminal stream closes.
func (c *Console) ReadLine() (string, error) {
	return c.term.ReadLine()
}

// Printf writes formatted output to the console.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.term, format, args...)
}

// Restore returns the terminal to its initial (cooked) mode. Callers must call this before
// exiting the monitor, or the host shell is left in raw mode.
func (c *Console) Restore() error {
	return term.Restore(c.fd, c.state)
}

// readWriter adapts a read *os.File and a write *os.File to the single io.ReadWriter
// *term.Terminal expects.
type readWriter struct {
	r *os.File
	w *os.File
}

func (rw readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }
