//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package tty

import (
	"os"

	"golang.org/x/sys/unix"
)

// Cooked puts the terminal on fd into canonical mode with echo and signal
// generation, returning a function that restores the previous mode.
func Cooked(fd int) (func(), error) {
	orig, err := unix.IoctlGetTermios(fd, ioctlReadTermios)
	if err != nil {
		return nil, err
	}
	cooked := *orig
	cooked.Lflag |= unix.ECHO | unix.ICANON | unix.ISIG
	cooked.Iflag |= unix.ICRNL
	if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, &cooked); err != nil {
		return nil, err
	}
	return func() {
		unix.IoctlSetTermios(fd, ioctlWriteTermios, orig)
	}, nil
}

// ReadLine writes prompt to out and reads one line from in with the
// terminal forced into cooked mode, restoring the previous mode after.
// The returned line keeps its newline.
func ReadLine(in *os.File, out *os.File, prompt string) (string, error) {
	if restore, err := Cooked(int(in.Fd())); err == nil {
		defer restore()
	}
	if prompt != "" && out != nil {
		if _, err := out.WriteString(prompt); err != nil {
			return "", err
		}
	}
	return readLine(in)
}
