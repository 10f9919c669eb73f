//go:build !windows

package rl

import (
	"fmt"
	"io"
)

func enableBracketedPaste(w io.Writer) {
	fmt.Fprint(w, "\x1b[?2004h")
}

func disableBracketedPaste(w io.Writer) {
	fmt.Fprint(w, "\x1b[?2004l")
}
