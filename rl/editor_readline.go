package rl

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chzyer/readline"

	"github.com/mattn/yarl/tty"
)

// readlineEditor drives github.com/chzyer/readline. An Instance cannot
// run two reads at once, so every nesting depth gets its own Instance
// reading its own View of the multiplexer. SaveState moves reads to the
// next depth; RestoreState moves them back.
type readlineEditor struct {
	env    *EditorEnv
	fd     int
	cooked *tty.State

	mu       sync.Mutex
	insts    [MaxDepth]*readline.Instance
	depth    int
	raw      bool
	settings Settings
}

// NewReadlineEditor is the default EditorFactory.
func NewReadlineEditor(env *EditorEnv) (Editor, error) {
	fd := int(env.In.Fd())
	cooked, err := tty.GetState(fd)
	if err != nil {
		return nil, err
	}
	// chzyer/readline cannot tell pasted text from typed text
	env.Mux.SetStripPaste(true)
	return &readlineEditor{
		env:      env,
		fd:       fd,
		cooked:   cooked,
		settings: env.Settings,
	}, nil
}

func (e *readlineEditor) paintParens() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.BlinkMatchingParen
}

// instance returns the Instance for depth, creating it on first use.
func (e *readlineEditor) instance(depth int) (*readline.Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if inst := e.insts[depth]; inst != nil {
		return inst, nil
	}
	s := e.settings
	limit := s.HistorySize
	if limit <= 0 {
		limit = -1
	}
	inst, err := readline.NewEx(&readline.Config{
		Stdin:                  e.env.Mux.View(depth + 1),
		Stdout:                 e.env.Out,
		Stderr:                 e.env.Err,
		HistoryLimit:           limit,
		DisableAutoSaveHistory: true,
		HistorySearchFold:      s.CompletionIgnoreCase,
		AutoComplete:           e.env.Completer,
		Painter:                &parenPainter{on: e.paintParens},
		VimMode:                s.EditingMode == "vi",
		InterruptPrompt:        "^C",
		EOFPrompt:              "\n",
		FuncIsTerminal:         func() bool { return true },
		FuncMakeRaw:            e.PrepTerminal,
		FuncExitRaw:            e.DeprepTerminal,
		FuncGetWidth:           func() int { return tty.Width(e.fd) },
		// job control belongs to the signal shim, not the editor
		FuncFilterInputRune: func(r rune) (rune, bool) {
			return r, r != readline.CharCtrlZ
		},
	})
	if err != nil {
		return nil, err
	}
	if e.env.History != nil {
		for _, l := range e.env.History.Lines() {
			inst.SaveHistory(l)
		}
	}
	e.insts[depth] = inst
	return inst, nil
}

func (e *readlineEditor) current() *readline.Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insts[e.depth]
}

func (e *readlineEditor) Readline(prompt string) (string, error) {
	e.mu.Lock()
	depth := e.depth
	e.mu.Unlock()
	inst, err := e.instance(depth)
	if err != nil {
		return "", err
	}
	inst.SetPrompt(prompt)
	line, err := inst.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	return line, err
}

func (e *readlineEditor) SetPrompt(prompt string) {
	if inst := e.current(); inst != nil {
		inst.SetPrompt(prompt)
	}
}

func (e *readlineEditor) Refresh() {
	if inst := e.current(); inst != nil {
		inst.Refresh()
	}
}

func (e *readlineEditor) FreeLineState() {
	if inst := e.current(); inst != nil {
		inst.Operation.SetBuffer("")
	}
}

func (e *readlineEditor) CleanupAfterSignal() {
	e.DeprepTerminal()
	fmt.Fprint(e.env.Out, "\r\n")
}

func (e *readlineEditor) ResetAfterSignal() {
	e.PrepTerminal()
	e.Refresh()
}

func (e *readlineEditor) PrepTerminal() error {
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

func (e *readlineEditor) DeprepTerminal() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.raw {
		return nil
	}
	e.raw = false
	return tty.Restore(e.fd, e.cooked)
}

func (e *readlineEditor) Cancel() {
	e.mu.Lock()
	depth := e.depth
	e.mu.Unlock()
	e.env.Mux.Cancel(depth + 1)
}

func (e *readlineEditor) AddHistory(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, inst := range e.insts {
		if inst != nil {
			inst.SaveHistory(line)
		}
	}
}

func (e *readlineEditor) Apply(s Settings) {
	e.mu.Lock()
	e.settings = s
	insts := e.insts
	e.mu.Unlock()
	for _, inst := range insts {
		if inst != nil {
			inst.SetVimMode(s.EditingMode == "vi")
		}
	}
}

func (e *readlineEditor) SaveState() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	token := e.depth
	if e.depth < MaxDepth-1 {
		e.depth++
	}
	return token
}

func (e *readlineEditor) RestoreState(token int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.depth = token
}

// ClearPendingInput drops typed-ahead input so a nested read starts empty.
func (e *readlineEditor) ClearPendingInput() {
	e.env.Mux.Discard()
}

// DiscardArgument does nothing: chzyer/readline has no numeric arguments.
func (e *readlineEditor) DiscardArgument() {}

func (e *readlineEditor) Close() error {
	e.mu.Lock()
	insts := e.insts
	e.insts = [MaxDepth]*readline.Instance{}
	e.mu.Unlock()
	var errs []error
	for _, inst := range insts {
		if inst != nil {
			errs = append(errs, inst.Close())
		}
	}
	e.DeprepTerminal()
	return errors.Join(errs...)
}
