package tui

import (
	"errors"
	"fmt"
	"io"
)

// ErrNotInteractive is returned when the console is started without a
// terminal.
var ErrNotInteractive = errors.New("the console needs an interactive terminal")

// runFallback handles non-TTY execution by pointing at the headless
// commands.
func runFallback(w io.Writer) error {
	fmt.Fprintln(w, "Non-TTY environment detected.")
	fmt.Fprintln(w, "Use 'adt-console status' for a one-shot governance summary,")
	fmt.Fprintln(w, "or 'adt-console watch' to stream governance alerts.")
	return ErrNotInteractive
}
