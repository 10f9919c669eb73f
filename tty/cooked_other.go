//go:build !windows && !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package tty

import "os"

// Cooked is a no-op here.
func Cooked(fd int) (func(), error) {
	return func() {}, nil
}

// ReadLine writes prompt to out and reads one line from in as is.
func ReadLine(in *os.File, out *os.File, prompt string) (string, error) {
	if prompt != "" && out != nil {
		if _, err := out.WriteString(prompt); err != nil {
			return "", err
		}
	}
	return readLine(in)
}
