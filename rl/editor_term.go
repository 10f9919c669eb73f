package rl

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/term"

	"github.com/mattn/yarl/tty"
)

// termEditor drives golang.org/x/term. It is not reentrant: a nested
// read while it is reading gets unedited input.
type termEditor struct {
	env    *EditorEnv
	fd     int
	cooked *tty.State
	t      *term.Terminal

	mu        sync.Mutex
	raw       bool
	cancelled atomic.Bool
}

// NewTermEditor is an EditorFactory for a minimal editor without
// reentrancy, vi mode or history search.
func NewTermEditor(env *EditorEnv) (Editor, error) {
	fd := int(env.In.Fd())
	cooked, err := tty.GetState(fd)
	if err != nil {
		return nil, err
	}
	e := &termEditor{env: env, fd: fd, cooked: cooked}
	rw := struct {
		io.Reader
		io.Writer
	}{env.Mux.View(1), env.Out}
	e.t = term.NewTerminal(rw, "")
	e.t.History = &termHistory{h: env.History}
	e.t.AutoCompleteCallback = e.complete
	return e, nil
}

// termHistory shows our History to x/term. Lines are added through
// Readline.AddHistory, not by the terminal.
type termHistory struct {
	h *History
}

func (th *termHistory) Add(string) {}

func (th *termHistory) Len() int {
	if th.h == nil {
		return 0
	}
	return th.h.Len()
}

func (th *termHistory) At(idx int) string {
	lines := th.h.Lines()
	return lines[len(lines)-1-idx]
}

func (e *termEditor) complete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' || e.env.Completer == nil {
		return "", 0, false
	}
	rs := []rune(line[:pos])
	rest := line[pos:]
	ins, _ := e.env.Completer.Do(rs, len(rs))
	if len(ins) == 0 {
		return "", 0, false
	}
	add := ins[0]
	if len(ins) > 1 {
		add = commonPrefix(ins)
	}
	head := string(rs) + string(add)
	return head + rest, len(head), true
}

func commonPrefix(cands [][]rune) []rune {
	p := cands[0]
	for _, c := range cands[1:] {
		n := 0
		for n < len(p) && n < len(c) && p[n] == c[n] {
			n++
		}
		p = p[:n]
	}
	return p
}

func (e *termEditor) Readline(prompt string) (string, error) {
	e.cancelled.Store(false)
	if err := e.PrepTerminal(); err != nil {
		return "", err
	}
	defer e.DeprepTerminal()
	e.t.SetSize(tty.Width(e.fd), 0)
	e.t.SetPrompt(prompt)
	line, err := e.t.ReadLine()
	if errors.Is(err, term.ErrPasteIndicator) {
		err = nil
	}
	if err != nil && e.cancelled.Load() {
		return "", ErrInterrupted
	}
	return line, err
}

func (e *termEditor) SetPrompt(prompt string) { e.t.SetPrompt(prompt) }

// Refresh redraws the prompt and line below whatever was written since.
func (e *termEditor) Refresh() { e.t.Write(nil) }

// FreeLineState sends end-of-line and kill-to-start keys ahead of any
// typed input.
func (e *termEditor) FreeLineState() {
	e.env.Mux.Inject(1, []byte("\x05\x15"))
}

func (e *termEditor) CleanupAfterSignal() {
	e.DeprepTerminal()
	io.WriteString(e.env.Out, "\r\n")
}

func (e *termEditor) ResetAfterSignal() {
	e.PrepTerminal()
	e.Refresh()
}

func (e *termEditor) PrepTerminal() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.raw {
		return nil
	}
	if _, err := tty.MakeRaw(e.fd); err != nil {
		return err
	}
	e.raw = true
	return nil
}

func (e *termEditor) DeprepTerminal() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.raw {
		return nil
	}
	e.raw = false
	return tty.Restore(e.fd, e.cooked)
}

// Cancel makes the read return; x/term reports the interrupt key as end
// of file, so the flag tells the two apart.
func (e *termEditor) Cancel() {
	e.cancelled.Store(true)
	e.env.Mux.Cancel(1)
}

func (e *termEditor) AddHistory(string) {}

func (e *termEditor) Apply(Settings) {}

func (e *termEditor) Close() error {
	return e.DeprepTerminal()
}
