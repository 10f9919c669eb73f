//go:build !windows

package rl

import (
	"os"
	"syscall"
)

// controlKeys are the bytes the tty driver turns into signals when ISIG is
// set. Raw mode clears ISIG, so the multiplexer does it instead.
var controlKeys = map[byte]os.Signal{
	0x03: syscall.SIGINT,
	0x1a: syscall.SIGTSTP,
	0x1c: syscall.SIGQUIT,
}

// wordBreaks delimit the word completion works on.
const wordBreaks = ":\t\n\"\\'`@$><= [](){}+*!,|%&?"
