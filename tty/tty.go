// Package tty wraps the terminal primitives the line reader needs: raw
// and cooked mode switches, readiness polling and single-key reads.
package tty

import (
	"io"

	"golang.org/x/term"
)

// State is a saved terminal mode.
type State = term.State

func IsTerminal(fd int) bool {
	return fd >= 0 && term.IsTerminal(fd)
}

func MakeRaw(fd int) (*State, error) {
	return term.MakeRaw(fd)
}

func GetState(fd int) (*State, error) {
	return term.GetState(fd)
}

func Restore(fd int, st *State) error {
	if st == nil {
		return nil
	}
	return term.Restore(fd, st)
}

// Width returns the terminal width, or 80 when it cannot be determined.
func Width(fd int) int {
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// GetKey reads a single byte from r with the terminal on fd in raw mode.
// When fd is not a terminal the byte is read as is.
func GetKey(r io.Reader, fd int) (byte, error) {
	if IsTerminal(fd) {
		st, err := term.MakeRaw(fd)
		if err != nil {
			return 0, err
		}
		defer term.Restore(fd, st)
	}
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			return b[0], nil
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
	}
}

// readLine reads bytes up to and including a newline without buffering
// past it, so the rest of the input stays on the descriptor.
func readLine(r io.Reader) (string, error) {
	var buf []byte
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n == 1 {
			buf = append(buf, b[0])
			if b[0] == '\n' {
				return string(buf), nil
			}
			continue
		}
		if err != nil {
			if len(buf) > 0 && err == io.EOF {
				return string(buf), nil
			}
			return string(buf), err
		}
	}
}

// ReadLineFrom reads one line from r, keeping the newline.
func ReadLineFrom(r io.Reader) (string, error) {
	return readLine(r)
}
