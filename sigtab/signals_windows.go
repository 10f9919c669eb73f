//go:build windows

package sigtab

import (
	"os"
	"syscall"
)

// Signals are the signals a line read intercepts. Windows only delivers
// console interrupts, so the stop family and alarms have no equivalent.
var Signals = []os.Signal{os.Interrupt}

var Stops []os.Signal

var Terminates = []os.Signal{syscall.SIGTERM}

func Number(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}
