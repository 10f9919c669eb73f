//go:build windows

package rl

import "os"

// Windows has no job control or quit key; only Ctrl-C is mapped.
var controlKeys = map[byte]os.Signal{
	0x03: os.Interrupt,
}

// wordBreaks delimit the word completion works on. The colon is left out
// so drive letters stay part of file names.
const wordBreaks = "\t\n\"\\'`@$><= [](){}+*!,|%&?"
