//go:build !windows

package sigtab

import (
	"os"
	"syscall"
)

// Signals are the signals a line read intercepts, in registration order.
var Signals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTSTP,
	syscall.SIGTTOU,
	syscall.SIGTTIN,
	syscall.SIGALRM,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

// Stops is the terminal stop family.
var Stops = []os.Signal{syscall.SIGTSTP, syscall.SIGTTOU, syscall.SIGTTIN}

// Terminates are signals whose default action ends the process.
var Terminates = []os.Signal{syscall.SIGALRM, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP}

// Number returns the signal number, used for 128+n exit codes.
func Number(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return 0
}
