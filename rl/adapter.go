package rl

import (
	"errors"
	"fmt"
	"io"

	"github.com/mattn/yarl/stream"
	"github.com/mattn/yarl/tty"
)

// read is the Read function bound to the host's streams by Wrap.
func (r *Readline) read(s *stream.Stream, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	switch s.TTYMode() {
	case stream.Raw:
		return r.readRaw(p)
	case stream.NoTTY:
		return r.readNoTTY(s, p)
	}
	return r.readCooked(s, p)
}

// readRaw returns one keystroke. The key is taken from the multiplexer at
// a level of its own, so typed-ahead input already read from the terminal
// is seen first. The EOF and suspend characters end the input.
func (r *Readline) readRaw(p []byte) (int, error) {
	level := r.state.Nesting() + 1
	r.mux.Push(level)
	defer r.mux.Pop(level)
	c, err := tty.GetKey(r.mux.View(level), r.fd)
	if err != nil {
		return 0, err
	}
	if c == 0x04 || c == 0x1a {
		return 0, io.EOF
	}
	p[0] = c
	return 1, nil
}

// ReadAnswer writes prompt to the error stream and reads one line typed
// in cooked mode, outside the editor and its history. The line keeps its
// newline. Like raw keys, it is served by the multiplexer so typed-ahead
// input is not skipped.
func (r *Readline) ReadAnswer(prompt string) (string, error) {
	r.mu.Lock()
	mux := r.mux
	r.mu.Unlock()
	if mux == nil {
		return "", ErrNotWrapped
	}
	r.host.Streams().Flush()
	fmt.Fprint(r.errOut, prompt)

	level := r.state.Nesting() + 1
	mux.Push(level)
	defer mux.Pop(level)
	if tty.IsTerminal(r.fd) {
		if restore, err := tty.Cooked(r.fd); err == nil {
			defer restore()
		}
	}
	return tty.ReadLineFrom(mux.View(level))
}

func (r *Readline) readNoTTY(s *stream.Stream, p []byte) (int, error) {
	fd := s.Fd()
	if !r.host.Dispatch(fd, DispatchWait) {
		if exc := r.host.Exception(); exc != nil {
			return 0, hostError(exc)
		}
	}
	n, err := r.orig.Read(s, p)
	if n > 0 && p[n-1] == '\n' {
		s.PromptNext()
	}
	return n, err
}

func (r *Readline) readCooked(s *stream.Stream, p []byte) (int, error) {
	std := r.host.Streams()
	std.Out.Flush()

	prompt := s.PromptString()
	s.PromptTaken()
	if prompt != "" && s.Protocolling() {
		s.AddToProtocol(prompt)
	}

	if r.host.Dispatch(s.Fd(), DispatchInstalled) {
		r.mux.SetHook(r.eventHook)
		defer r.mux.SetHook(nil)
	}
	r.lastPos.Store(std.Out.Position().Chars)

	line, err := r.readLine(prompt)
	if err != nil {
		if exc := r.host.Exception(); exc != nil {
			return 0, hostError(exc)
		}
		if errors.Is(err, ErrTooDeep) {
			r.host.Warning("Too many nested line reads")
		}
		r.logf("readline: read ended: %v", err)
		return 0, io.EOF
	}

	line += "\n"
	if len(line) > len(p) {
		r.host.Warning("Input line too long")
		line = line[:len(p)-1] + "\n"
	}
	n := copy(p, line)
	s.PromptNext()
	return n, nil
}

// eventHook runs while the editor waits for a keystroke. It lets the host
// do pending work and redraws the line if that work wrote output. It
// returns true when it is safe to block on the terminal.
func (r *Readline) eventHook() bool {
	std := r.host.Streams()
	safe := r.host.Dispatch(r.fd, DispatchNoWait)
	std.Flush()

	pos := std.Out.Position().Chars
	if pos != r.lastPos.Swap(pos) {
		if f := r.state.flightAt(r.mux.Owner()); f != nil {
			f.target.SetPrompt(r.state.Prompt())
			f.target.Refresh()
		}
	}
	return safe
}
