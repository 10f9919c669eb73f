//go:build windows

package tty

import "time"

// PollIn always reports input as ready. Console handles cannot be polled,
// so callers block in the read instead.
func PollIn(fd int, timeout time.Duration) (bool, error) {
	return true, nil
}

// Stop is a no-op; Windows has no job control.
func Stop() error {
	return nil
}
