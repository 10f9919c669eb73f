//go:build !windows

package tty

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// PollIn reports whether fd has input available, waiting at most timeout.
// A zero timeout only checks.
func PollIn(fd int, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	ms := int(timeout / time.Millisecond)
	for {
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
	}
}

// Stop suspends the calling process as the terminal stop signals do.
func Stop() error {
	return unix.Kill(unix.Getpid(), unix.SIGSTOP)
}
