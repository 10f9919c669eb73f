// Package rl plugs a line editor into a host runtime's standard input.
//
// Wrap rebinds the host's input, output and error streams to a read
// function that reads lines through the editor. Reads may nest: a signal
// handler run during a read may read a line itself. The package keeps
// signal dispositions, the terminal and the editor consistent across
// such nesting and across handlers that unwind instead of returning.
package rl

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/mattn/yarl/sigtab"
	"github.com/mattn/yarl/stream"
	"github.com/mattn/yarl/tty"
)

// Config configures a Readline.
type Config struct {
	// Editor builds the line editor. The default is NewReadlineEditor.
	Editor EditorFactory
	// NoReentrant serves nested reads with unedited input even when the
	// editor supports reentry.
	NoReentrant bool
	// SmartComplete drops the space a unique completion appends when the
	// completed word was typed directly before the cursor.
	SmartComplete bool
	Settings      Settings
	// Signals are intercepted during reads. Default sigtab.Signals.
	Signals []os.Signal
	// AppName is matched by $if in init files.
	AppName string
	// Logf receives protocol tracing. Nil is silent.
	Logf func(format string, args ...any)
}

// Readline is the line-reading protocol bound to one host. There is at
// most one wrapped Readline per process.
type Readline struct {
	host Host
	cfg  Config

	state *State
	shim  *shim
	hist  *History
	comp  *Completer

	mu       sync.Mutex
	settings Settings
	wrapped  bool
	mux      *Mux
	ed       Editor
	bound    stream.Bound
	orig     *stream.Functions

	in      *os.File
	fd      int
	out     io.Writer
	errOut  io.Writer
	lastPos atomic.Int64
}

var active atomic.Pointer[Readline]

// New returns a Readline for h. Nothing is rebound until Wrap.
func New(h Host, cfg Config) *Readline {
	if cfg.Editor == nil {
		cfg.Editor = NewReadlineEditor
	}
	if cfg.Signals == nil {
		cfg.Signals = sigtab.Signals
	}
	if cfg.AppName == "" {
		cfg.AppName = "Yarl"
	}
	if cfg.Settings == (Settings{}) {
		cfg.Settings = DefaultSettings()
	}
	r := &Readline{
		host:     h,
		cfg:      cfg,
		state:    newState(),
		shim:     newShim(h.Signals(), cfg.Signals),
		hist:     NewHistory(cfg.Settings.HistorySize),
		settings: cfg.Settings,
		fd:       -1,
		out:      io.Discard,
		errOut:   io.Discard,
	}
	r.comp = NewCompleter(h.Generator, h.FileName)
	r.comp.SetSmart(cfg.SmartComplete)
	r.comp.SetIgnoreCase(cfg.Settings.CompletionIgnoreCase)
	r.comp.SetInsertClose(cfg.Settings.BlinkMatchingParen)
	return r
}

func (r *Readline) State() *State { return r.state }

func (r *Readline) History() *History { return r.hist }

func (r *Readline) Completer() *Completer { return r.comp }

// ShimState reports the state of the signal shim.
func (r *Readline) ShimState() ShimState { return r.shim.State() }

// Settings returns the editor variables in effect.
func (r *Readline) Settings() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// Wrapped reports whether the host streams read through the editor.
func (r *Readline) Wrapped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wrapped
}

func (r *Readline) logf(format string, args ...any) {
	if r.cfg.Logf != nil {
		r.cfg.Logf(format, args...)
	}
}

// Wrap rebinds the host's input, output and error streams to read through
// the editor and sets the host flags readline and tty_control. It does
// nothing when input is not a terminal.
func (r *Readline) Wrap() error {
	in := r.host.Streams().In.File()
	if in == nil || !tty.IsTerminal(int(in.Fd())) {
		return nil
	}
	return r.wrap(in)
}

func (r *Readline) wrap(in *os.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wrapped {
		return ErrAlreadyWrapped
	}
	if !active.CompareAndSwap(nil, r) {
		return ErrAlreadyWrapped
	}

	std := r.host.Streams()
	r.in = in
	r.fd = int(in.Fd())
	if f := std.Out.File(); f != nil {
		r.out = f
	}
	if f := std.Err.File(); f != nil {
		r.errOut = f
	}

	r.mux = NewMux(in, r.fd)
	r.mux.SetControl(r.shim.post)
	r.mux.SetKeyseqTimeout(r.settings.KeyseqTimeout)

	ed, err := r.cfg.Editor(&EditorEnv{
		Mux:       r.mux,
		In:        in,
		Out:       r.out,
		Err:       r.errOut,
		Completer: r.comp,
		History:   r.hist,
		Settings:  r.settings,
	})
	if err != nil {
		r.mux.Close()
		active.CompareAndSwap(r, nil)
		return err
	}
	r.ed = ed

	// One table for all three streams, copied from the input's so writes
	// and closes behave as before.
	r.orig = std.In.Functions()
	fn := *r.orig
	fn.Read = r.read
	r.bound = std.Rebind(&fn)

	if r.settings.BracketedPaste {
		enableBracketedPaste(r.out)
	}
	r.wrapped = true
	r.host.SetFlag("readline", "readline")
	r.host.SetFlag("tty_control", true)
	return nil
}

// Unwrap undoes Wrap.
func (r *Readline) Unwrap() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.wrapped {
		return ErrNotWrapped
	}
	r.host.Streams().Restore(r.bound)
	if r.settings.BracketedPaste {
		disableBracketedPaste(r.out)
	}
	// the editor's readers must see end of file before it can close
	r.mux.Close()
	err := r.ed.Close()
	r.wrapped = false
	active.CompareAndSwap(r, nil)
	r.host.SetFlag("readline", false)
	return err
}

// AddHistory appends line to the history unless it repeats the line added
// last. It reports whether the line was added.
func (r *Readline) AddHistory(line string) bool {
	if !r.state.remember(line) {
		return false
	}
	r.hist.Add(line)
	r.mu.Lock()
	ed := r.ed
	r.mu.Unlock()
	if ed != nil {
		ed.AddHistory(line)
	}
	return true
}

// WriteHistory saves the history to path.
func (r *Readline) WriteHistory(path string) error {
	p, err := r.host.FileName(path)
	if err != nil {
		return err
	}
	return r.hist.Write(p)
}

// ReadHistory loads history from path.
func (r *Readline) ReadHistory(path string) error {
	p, err := r.host.FileName(path)
	if err != nil {
		return err
	}
	lines, err := r.hist.Read(p)
	if err != nil {
		return err
	}
	r.mu.Lock()
	ed := r.ed
	r.mu.Unlock()
	if ed != nil {
		for _, l := range lines {
			ed.AddHistory(l)
		}
	}
	return nil
}

// applySettings makes s the editor variables in effect.
func (r *Readline) applySettings(s Settings) {
	r.mu.Lock()
	old := r.settings
	r.settings = s
	ed := r.ed
	mux := r.mux
	wrapped := r.wrapped
	r.mu.Unlock()

	r.hist.SetLimit(s.HistorySize)
	r.comp.SetIgnoreCase(s.CompletionIgnoreCase)
	r.comp.SetInsertClose(s.BlinkMatchingParen)
	if mux != nil {
		mux.SetKeyseqTimeout(s.KeyseqTimeout)
	}
	if ed != nil {
		ed.Apply(s)
	}
	if wrapped && old.BracketedPaste != s.BracketedPaste {
		if s.BracketedPaste {
			enableBracketedPaste(r.out)
		} else {
			disableBracketedPaste(r.out)
		}
	}
}

// Close unwraps if needed.
func (r *Readline) Close() error {
	if r.Wrapped() {
		return r.Unwrap()
	}
	return nil
}
