package rl

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/yarl/sigtab"
	"github.com/mattn/yarl/tty"
)

// abandonWait bounds how long an abandoned editor read may take to notice
// its cancellation.
const abandonWait = 2 * time.Second

// lineTarget is the part of an editor the signal and refresh paths touch.
type lineTarget interface {
	SetPrompt(prompt string)
	Refresh()
	FreeLineState()
	CleanupAfterSignal()
	ResetAfterSignal()
}

// plainTarget stands in for the editor during an unedited read.
type plainTarget struct{}

func (plainTarget) SetPrompt(string)    {}
func (plainTarget) Refresh()            {}
func (plainTarget) FreeLineState()      {}
func (plainTarget) CleanupAfterSignal() {}
func (plainTarget) ResetAfterSignal()   {}

// readLine runs one editor read under the reentrancy guard.
func (r *Readline) readLine(prompt string) (line string, err error) {
	level, err := r.state.enter()
	if err != nil {
		return "", err
	}
	normal := false
	defer func() {
		r.state.leave(level, normal)
	}()

	// the outer read's prompt survives a resync
	old := r.state.swapPrompt(prompt)
	defer r.state.swapPrompt(old)
	if r.state.abandoned(level) {
		r.resync(level)
	}

	red, reentrant := r.ed.(ReentrantEditor)
	switch {
	case level == 1:
		line, err = r.guarded(level, prompt, r.ed, r.ed.Readline)
	case r.cfg.NoReentrant || !reentrant:
		r.logf("readline: nested read at level %d without a reentrant editor", level)
		line, err = r.guarded(level, prompt, plainTarget{}, func(p string) (string, error) {
			return r.plainRead(level, p)
		})
	default:
		token := red.SaveState()
		red.ClearPendingInput()
		red.DiscardArgument()
		red.DeprepTerminal()
		func() {
			defer func() {
				red.PrepTerminal()
				red.RestoreState(token)
			}()
			line, err = r.guarded(level, prompt, red, red.Readline)
		}()
	}
	normal = true
	return line, err
}

// guarded runs read on a helper goroutine with the trampoline installed
// and handles signals on the calling goroutine until the read is done. A
// handler that unwinds (panics) abandons the read: it is cancelled and
// drained before the unwind continues.
func (r *Readline) guarded(level int, prompt string, target lineTarget, read func(string) (string, error)) (string, error) {
	r.shim.prepare()
	defer r.shim.restore()
	r.mux.Push(level)
	defer r.mux.Pop(level)

	f := &flight{level: level, target: target, done: make(chan result, 1)}
	r.state.setFlight(level, f)
	finished := false
	defer func() {
		if !finished {
			r.abandon(level)
		}
	}()

	go func() {
		line, err := read(prompt)
		f.done <- result{line: line, err: err}
	}()

	cancelled := false
	for {
		select {
		case res := <-f.done:
			finished = true
			r.state.takeFlight(level)
			r.mux.ClearInjected(level)
			if cancelled {
				return "", ErrInterrupted
			}
			return res.line, res.err
		case sig := <-r.shim.pending:
			r.handle(sig, target)
			if !cancelled && r.host.Exception() != nil {
				cancelled = true
				r.cancel(level, target)
			}
		}
	}
}

// handle runs the trampoline steps for sig on the reading goroutine.
func (r *Readline) handle(sig os.Signal, target lineTarget) {
	r.state.signalled()
	r.logf("readline: %v at level %d", sig, r.state.Nesting())

	if sig == os.Interrupt {
		target.FreeLineState()
	}
	target.CleanupAfterSignal()
	prev := r.shim.disarm(sig)
	r.host.Streams().Out.Reset()

	switch prev.Action {
	case sigtab.Default:
		r.shim.setState(ShimReraising)
		r.host.Signals().Raise(sig)
	case sigtab.Catch:
		r.shim.setState(ShimReraising)
		if prev.Handler != nil {
			prev.Handler(sig)
		}
	}
	r.shim.setState(ShimReturning)
	r.shim.rearm()
	target.ResetAfterSignal()
}

// cancel makes the read at level give up its line.
func (r *Readline) cancel(level int, target lineTarget) {
	if ed, ok := target.(Editor); ok {
		ed.Cancel()
		return
	}
	r.mux.Cancel(level)
}

// abandon cancels the read in flight at level and waits for it to end.
func (r *Readline) abandon(level int) {
	f := r.state.takeFlight(level)
	if f == nil {
		return
	}
	r.cancel(level, f.target)
	select {
	case <-f.done:
		r.mux.ClearInjected(level)
	case <-time.After(abandonWait):
		// leave it for the next read at this level
		r.state.setFlight(level, f)
	}
}

// resync repairs state left behind by a read at level that never
// returned normally.
func (r *Readline) resync(level int) {
	r.logf("readline: resynchronising after abandoned read at level %d", level)
	if f := r.state.takeFlight(level); f != nil {
		r.mux.Cancel(level)
		select {
		case <-f.done:
		case <-time.After(abandonWait):
		}
		r.mux.ClearInjected(level)
	}
	r.state.reset()
	r.ed.ResetAfterSignal()
}

// plainRead reads an unedited line for a nested read the editor cannot
// serve. The terminal is put in cooked mode so the tty driver echoes and
// edits the line.
func (r *Readline) plainRead(level int, prompt string) (string, error) {
	fmt.Fprint(r.errOut, "[readline disabled] ")
	if prompt != "" {
		fmt.Fprint(r.out, prompt)
	}
	r.ed.DeprepTerminal()
	defer r.ed.PrepTerminal()
	if restore, err := tty.Cooked(r.fd); err == nil {
		defer restore()
	}

	v := r.mux.View(level)
	var buf []byte
	b := make([]byte, 1)
	for {
		n, err := v.Read(b)
		if n == 1 {
			switch b[0] {
			case 0x03:
				return "", ErrInterrupted
			case '\n':
				return string(buf), nil
			case '\r':
			default:
				buf = append(buf, b[0])
			}
			continue
		}
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				return string(buf), nil
			}
			return "", err
		}
	}
}
