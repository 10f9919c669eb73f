//go:build windows

package rl

import (
	"fmt"
	"io"
	"os"
)

// Only Windows Terminal understands the bracketed paste sequences; the
// legacy console prints them.
func enableBracketedPaste(w io.Writer) {
	if os.Getenv("WT_SESSION") != "" {
		fmt.Fprint(w, "\x1b[?2004h")
	}
}

func disableBracketedPaste(w io.Writer) {
	if os.Getenv("WT_SESSION") != "" {
		fmt.Fprint(w, "\x1b[?2004l")
	}
}
