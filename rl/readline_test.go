package rl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/mattn/yarl/sigtab"
	"github.com/mattn/yarl/stream"
)

var sigTerm os.Signal = syscall.SIGTERM

type nopOS struct{}

func (nopOS) Notify(chan<- os.Signal, ...os.Signal) {}
func (nopOS) Reset(...os.Signal)                    {}
func (nopOS) Ignore(...os.Signal)                   {}
func (nopOS) Stop(chan<- os.Signal)                 {}

type fakeHost struct {
	std *stream.Std
	tab *sigtab.Table

	mu       sync.Mutex
	exc      error
	flags    map[string]any
	warnings []string
	dispatch func(fd int, mode DispatchMode) bool
	gen      Generator
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		std:   stream.NewStd(nil, nil, nil),
		tab:   sigtab.New(nopOS{}),
		flags: map[string]any{},
	}
}

func (h *fakeHost) Streams() *stream.Std              { return h.std }
func (h *fakeHost) Signals() *sigtab.Table            { return h.tab }
func (h *fakeHost) Generator() Generator              { return h.gen }
func (h *fakeHost) FileName(p string) (string, error) { return p, nil }

func (h *fakeHost) Dispatch(fd int, mode DispatchMode) bool {
	if h.dispatch != nil {
		return h.dispatch(fd, mode)
	}
	return mode != DispatchInstalled
}

func (h *fakeHost) Exception() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exc
}

func (h *fakeHost) setException(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exc = err
}

func (h *fakeHost) Warning(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.warnings = append(h.warnings, fmt.Sprintf(format, args...))
}

func (h *fakeHost) SetFlag(name string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flags[name] = value
}

func (h *fakeHost) flag(name string) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flags[name]
}

// fakeEditor reads lines from its View of the multiplexer the way a real
// editor would, without a terminal.
type fakeEditor struct {
	mux     *Mux
	started chan int

	mu    sync.Mutex
	depth int
	calls map[string]int
}

func newFakeEditor(m *Mux) *fakeEditor {
	return &fakeEditor{mux: m, started: make(chan int, 16), calls: map[string]int{}}
}

func (e *fakeEditor) count(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[name]++
}

func (e *fakeEditor) called(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[name]
}

func (e *fakeEditor) Readline(prompt string) (string, error) {
	e.mu.Lock()
	level := e.depth + 1
	e.mu.Unlock()
	e.started <- level

	v := e.mux.View(level)
	var line []byte
	b := make([]byte, 1)
	for {
		n, err := v.Read(b)
		if n == 1 {
			switch b[0] {
			case 0x03:
				return "", ErrInterrupted
			case '\n':
				return string(line), nil
			}
			line = append(line, b[0])
			continue
		}
		if err != nil {
			return "", err
		}
	}
}

func (e *fakeEditor) SetPrompt(string)      { e.count("SetPrompt") }
func (e *fakeEditor) Refresh()              { e.count("Refresh") }
func (e *fakeEditor) FreeLineState()        { e.count("FreeLineState") }
func (e *fakeEditor) CleanupAfterSignal()   { e.count("CleanupAfterSignal") }
func (e *fakeEditor) ResetAfterSignal()     { e.count("ResetAfterSignal") }
func (e *fakeEditor) PrepTerminal() error   { e.count("PrepTerminal"); return nil }
func (e *fakeEditor) DeprepTerminal() error { e.count("DeprepTerminal"); return nil }
func (e *fakeEditor) AddHistory(string)     { e.count("AddHistory") }
func (e *fakeEditor) Apply(Settings)        { e.count("Apply") }
func (e *fakeEditor) Close() error          { e.count("Close"); return nil }

func (e *fakeEditor) Cancel() {
	e.mu.Lock()
	level := e.depth + 1
	e.mu.Unlock()
	e.mux.Cancel(level)
}

type fakeReentrant struct {
	*fakeEditor
	restored []int
}

func (e *fakeReentrant) SaveState() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	token := e.depth
	e.depth++
	return token
}

func (e *fakeReentrant) RestoreState(token int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.depth = token
	e.restored = append(e.restored, token)
}

func (e *fakeReentrant) ClearPendingInput() { e.count("ClearPendingInput") }
func (e *fakeReentrant) DiscardArgument()   { e.count("DiscardArgument") }

// newTestReadline returns a Readline reading from a pipe through an
// editor built by mk, without touching any terminal.
func newTestReadline(t *testing.T, mk func(m *Mux) Editor) (*Readline, *fakeHost, *io.PipeWriter) {
	t.Helper()
	h := newFakeHost()
	r := New(h, Config{Signals: []os.Signal{os.Interrupt, sigTerm}})
	pr, pw := io.Pipe()
	r.mux = NewMux(pr, -1)
	r.mux.SetControl(r.shim.post)
	r.ed = mk(r.mux)
	r.errOut = &bytes.Buffer{}
	t.Cleanup(func() {
		pw.Close()
		r.mux.Close()
		h.tab.Close()
	})
	return r, h, pw
}

type readResult struct {
	line     string
	err      error
	panicked any
}

func goRead(r *Readline, prompt string) <-chan readResult {
	ch := make(chan readResult, 1)
	go func() {
		var res readResult
		defer func() {
			res.panicked = recover()
			ch <- res
		}()
		res.line, res.err = r.readLine(prompt)
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan readResult) readResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("read did not return")
	}
	return readResult{}
}

func waitStarted(t *testing.T, ed *fakeEditor, level int) {
	t.Helper()
	select {
	case got := <-ed.started:
		if got != level {
			t.Fatalf("read started at level %d, want %d", got, level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("editor read did not start")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func writeInput(pw *io.PipeWriter, s string) {
	go pw.Write([]byte(s))
}

func TestReadLine_Plain(t *testing.T) {
	var ed *fakeEditor
	r, _, pw := newTestReadline(t, func(m *Mux) Editor { ed = newFakeEditor(m); return ed })

	ch := goRead(r, "?- ")
	waitStarted(t, ed, 1)
	if got := r.state.Prompt(); got != "?- " {
		t.Errorf("active prompt = %q, want %q", got, "?- ")
	}
	writeInput(pw, "foo.\n")
	res := waitResult(t, ch)
	if res.err != nil || res.line != "foo." {
		t.Fatalf("readLine = %q, %v; want %q", res.line, res.err, "foo.")
	}
	if r.state.Nesting() != 0 {
		t.Errorf("nesting = %d, want 0", r.state.Nesting())
	}
	if r.state.Prompt() != "" {
		t.Errorf("prompt not restored: %q", r.state.Prompt())
	}
}

func TestReadLine_ShimRestoresDispositions(t *testing.T) {
	var ed *fakeEditor
	r, h, pw := newTestReadline(t, func(m *Mux) Editor { ed = newFakeEditor(m); return ed })
	user := sigtab.Disposition{Action: sigtab.Ignore, Owner: "user"}
	h.tab.Set(sigTerm, user)

	ch := goRead(r, "")
	waitStarted(t, ed, 1)
	for _, sig := range []os.Signal{os.Interrupt, sigTerm} {
		if d := h.tab.Get(sig); d.Owner != r.shim {
			t.Errorf("%v during read: owner %v, want trampoline", sig, d.Owner)
		}
	}
	if r.ShimState() != ShimArmed {
		t.Errorf("shim state = %v, want armed", r.ShimState())
	}
	writeInput(pw, "x\n")
	waitResult(t, ch)

	if d := h.tab.Get(sigTerm); !d.Same(user) {
		t.Errorf("TERM after read = %+v, want user disposition", d)
	}
	if d := h.tab.Get(os.Interrupt); d.Action != sigtab.Default {
		t.Errorf("INT after read = %v, want default", d.Action)
	}
	if r.ShimState() != ShimIdle || r.shim.depth() != 0 {
		t.Errorf("shim not idle after read: %v depth %d", r.ShimState(), r.shim.depth())
	}
}

func TestReadLine_CustomHandlerRunsOnce(t *testing.T) {
	var ed *fakeEditor
	r, h, pw := newTestReadline(t, func(m *Mux) Editor { ed = newFakeEditor(m); return ed })
	var mu sync.Mutex
	calls := 0
	h.tab.Set(os.Interrupt, sigtab.Disposition{Action: sigtab.Catch, Owner: "user", Handler: func(os.Signal) {
		mu.Lock()
		calls++
		mu.Unlock()
	}})

	ch := goRead(r, "")
	waitStarted(t, ed, 1)
	h.tab.Raise(os.Interrupt)
	waitFor(t, "handler", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	})
	waitFor(t, "rearm", func() bool { return r.ShimState() == ShimArmed })
	writeInput(pw, "after\n")
	res := waitResult(t, ch)
	if res.err != nil || res.line != "after" {
		t.Fatalf("readLine = %q, %v; want the read to resume", res.line, res.err)
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
	for _, name := range []string{"FreeLineState", "CleanupAfterSignal", "ResetAfterSignal"} {
		if ed.called(name) != 1 {
			t.Errorf("%s called %d times, want 1", name, ed.called(name))
		}
	}
	if r.state.Marker() != -1 {
		t.Errorf("marker = %d after normal return, want -1", r.state.Marker())
	}
}

func TestReadLine_DefaultActionReraised(t *testing.T) {
	var ed *fakeEditor
	r, h, pw := newTestReadline(t, func(m *Mux) Editor { ed = newFakeEditor(m); return ed })
	done := make(chan os.Signal, 1)
	h.tab.SetDefault(sigTerm, func(sig os.Signal) { done <- sig })

	ch := goRead(r, "")
	waitStarted(t, ed, 1)
	h.tab.Raise(sigTerm)
	select {
	case sig := <-done:
		if sig != sigTerm {
			t.Errorf("default action got %v", sig)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("default action not run")
	}
	if ed.called("FreeLineState") != 0 {
		t.Error("line state freed for a signal other than interrupt")
	}
	writeInput(pw, "x\n")
	waitResult(t, ch)
}

func TestReadLine_HostExceptionCancels(t *testing.T) {
	var ed *fakeEditor
	r, h, _ := newTestReadline(t, func(m *Mux) Editor { ed = newFakeEditor(m); return ed })
	exc := errors.New("interrupted by user")
	h.tab.Set(os.Interrupt, sigtab.Disposition{Action: sigtab.Catch, Owner: "user", Handler: func(os.Signal) {
		h.setException(exc)
	}})

	ch := goRead(r, "")
	waitStarted(t, ed, 1)
	h.tab.Raise(os.Interrupt)
	res := waitResult(t, ch)
	if !errors.Is(res.err, ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", res.err)
	}
	if r.state.Nesting() != 0 || r.shim.depth() != 0 {
		t.Errorf("state left behind: nesting %d shim depth %d", r.state.Nesting(), r.shim.depth())
	}
}

type abort struct{}

func TestReadLine_AbandonedReadIsResynced(t *testing.T) {
	var ed *fakeEditor
	r, h, pw := newTestReadline(t, func(m *Mux) Editor { ed = newFakeEditor(m); return ed })
	user := sigtab.Disposition{Action: sigtab.Catch, Owner: "user", Handler: func(os.Signal) {
		panic(abort{})
	}}
	h.tab.Set(os.Interrupt, user)

	ch := goRead(r, "first> ")
	waitStarted(t, ed, 1)
	h.tab.Raise(os.Interrupt)
	res := waitResult(t, ch)
	if _, ok := res.panicked.(abort); !ok {
		t.Fatalf("panic = %v, want the handler's abort", res.panicked)
	}
	if r.state.Nesting() != 0 {
		t.Errorf("nesting = %d after abort, want 0", r.state.Nesting())
	}
	if r.state.Marker() != 1 {
		t.Errorf("marker = %d after abort, want 1", r.state.Marker())
	}
	if r.shim.depth() != 0 {
		t.Errorf("shim depth = %d after abort, want 0", r.shim.depth())
	}
	if d := h.tab.Get(os.Interrupt); !d.Same(user) {
		t.Errorf("INT after abort = %+v, want user handler", d)
	}
	if r.state.flightAt(1) != nil {
		t.Error("abandoned read still in flight")
	}

	resets := ed.called("ResetAfterSignal")
	ch = goRead(r, "second> ")
	waitStarted(t, ed, 1)
	if r.state.Marker() != -1 {
		t.Errorf("marker = %d after resync, want -1", r.state.Marker())
	}
	if got := r.state.Prompt(); got != "second> " {
		t.Errorf("active prompt = %q after resync, want %q", got, "second> ")
	}
	if ed.called("ResetAfterSignal") != resets+1 {
		t.Error("editor not reset after abandoned read")
	}
	writeInput(pw, "ok\n")
	res = waitResult(t, ch)
	if res.err != nil || res.line != "ok" {
		t.Fatalf("read after abort = %q, %v", res.line, res.err)
	}
}

func TestReadLine_ResyncKeepsOuterPrompt(t *testing.T) {
	var ed *fakeReentrant
	r, h, pw := newTestReadline(t, func(m *Mux) Editor {
		ed = &fakeReentrant{fakeEditor: newFakeEditor(m)}
		return ed
	})
	type outcome struct {
		marker      int
		during      string
		line        string
		err         error
		afterPrompt string
	}
	resumed := make(chan struct{}, 1)
	done := make(chan outcome, 1)
	calls := 0
	h.tab.Set(os.Interrupt, sigtab.Disposition{Action: sigtab.Catch, Owner: "user", Handler: func(os.Signal) {
		calls++
		if calls > 1 {
			panic(abort{})
		}
		func() {
			defer func() { recover() }()
			r.readLine("inner> ")
		}()
		var o outcome
		o.marker = r.state.Marker()
		resumed <- struct{}{}
		o.line, o.err = r.readLine("second> ")
		o.afterPrompt = r.state.Prompt()
		done <- o
	}})

	ch := goRead(r, "outer> ")
	waitStarted(t, ed.fakeEditor, 1)
	h.tab.Raise(os.Interrupt)
	waitStarted(t, ed.fakeEditor, 2)
	h.tab.Raise(os.Interrupt)

	<-resumed
	waitStarted(t, ed.fakeEditor, 2)
	if got := r.state.Prompt(); got != "second> " {
		t.Errorf("active prompt during resynced read = %q, want %q", got, "second> ")
	}
	writeInput(pw, "ok\n")
	var o outcome
	select {
	case o = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("resynced nested read did not return")
	}
	if o.marker != 2 {
		t.Errorf("marker after abandoned nested read = %d, want 2", o.marker)
	}
	if o.err != nil || o.line != "ok" {
		t.Errorf("resynced read = %q, %v; want %q", o.line, o.err, "ok")
	}
	if o.afterPrompt != "outer> " {
		t.Errorf("outer read's active prompt = %q, want %q", o.afterPrompt, "outer> ")
	}

	waitFor(t, "rearm", func() bool { return r.ShimState() == ShimArmed })
	writeInput(pw, "outer\n")
	if res := waitResult(t, ch); res.err != nil || res.line != "outer" {
		t.Fatalf("outer read = %q, %v", res.line, res.err)
	}
	if r.state.Prompt() != "" {
		t.Errorf("prompt = %q after all reads, want empty", r.state.Prompt())
	}
}

func TestReadLine_NestedWithoutReentrantEditor(t *testing.T) {
	var ed *fakeEditor
	r, h, pw := newTestReadline(t, func(m *Mux) Editor { ed = newFakeEditor(m); return ed })
	var nested string
	var nestedErr error
	h.tab.Set(os.Interrupt, sigtab.Disposition{Action: sigtab.Catch, Owner: "user", Handler: func(os.Signal) {
		nested, nestedErr = r.readLine("nested> ")
	}})

	ch := goRead(r, "outer> ")
	waitStarted(t, ed, 1)
	h.tab.Raise(os.Interrupt)
	waitFor(t, "nested read", func() bool { return r.state.Nesting() == 2 })
	if d := h.tab.Get(os.Interrupt); d.Owner != r.shim {
		t.Errorf("INT during nested read owned by %v, want trampoline", d.Owner)
	}
	writeInput(pw, "inner\n")
	waitFor(t, "nested read to end", func() bool { return r.state.Nesting() == 1 })
	waitFor(t, "rearm", func() bool { return r.ShimState() == ShimArmed })
	writeInput(pw, "outer\n")
	res := waitResult(t, ch)

	if nestedErr != nil || nested != "inner" {
		t.Errorf("nested read = %q, %v; want %q", nested, nestedErr, "inner")
	}
	if res.err != nil || res.line != "outer" {
		t.Errorf("outer read = %q, %v; want %q", res.line, res.err, "outer")
	}
	if got := r.errOut.(*bytes.Buffer).String(); got != "[readline disabled] " {
		t.Errorf("degrade notice = %q", got)
	}
}

func TestReadLine_NestedReentrant(t *testing.T) {
	var ed *fakeReentrant
	r, h, pw := newTestReadline(t, func(m *Mux) Editor {
		ed = &fakeReentrant{fakeEditor: newFakeEditor(m)}
		return ed
	})
	var nested string
	h.tab.Set(os.Interrupt, sigtab.Disposition{Action: sigtab.Catch, Owner: "user", Handler: func(os.Signal) {
		nested, _ = r.readLine("nested> ")
	}})

	ch := goRead(r, "outer> ")
	waitStarted(t, ed.fakeEditor, 1)
	h.tab.Raise(os.Interrupt)
	waitStarted(t, ed.fakeEditor, 2)
	writeInput(pw, "inner\n")
	waitFor(t, "nested read to end", func() bool { return r.state.Nesting() == 1 })
	waitFor(t, "rearm", func() bool { return r.ShimState() == ShimArmed })
	writeInput(pw, "outer\n")
	res := waitResult(t, ch)

	if nested != "inner" || res.line != "outer" {
		t.Errorf("nested %q outer %q", nested, res.line)
	}
	if len(ed.restored) != 1 || ed.restored[0] != 0 {
		t.Errorf("restored tokens = %v, want [0]", ed.restored)
	}
	if ed.called("ClearPendingInput") != 1 || ed.called("DiscardArgument") != 1 {
		t.Error("pending input or argument not cleared before nested read")
	}
	if ed.called("DeprepTerminal") != 1 || ed.called("PrepTerminal") != 1 {
		t.Errorf("terminal deprep/prep = %d/%d, want 1/1", ed.called("DeprepTerminal"), ed.called("PrepTerminal"))
	}
}

func TestReadLine_NoReentrantConfig(t *testing.T) {
	var ed *fakeReentrant
	r, h, pw := newTestReadline(t, func(m *Mux) Editor {
		ed = &fakeReentrant{fakeEditor: newFakeEditor(m)}
		return ed
	})
	r.cfg.NoReentrant = true
	h.tab.Set(os.Interrupt, sigtab.Disposition{Action: sigtab.Catch, Owner: "user", Handler: func(os.Signal) {
		r.readLine("")
	}})

	ch := goRead(r, "")
	waitStarted(t, ed.fakeEditor, 1)
	h.tab.Raise(os.Interrupt)
	waitFor(t, "nested read", func() bool { return r.state.Nesting() == 2 })
	writeInput(pw, "inner\n")
	waitFor(t, "nested read to end", func() bool { return r.state.Nesting() == 1 })
	waitFor(t, "rearm", func() bool { return r.ShimState() == ShimArmed })
	writeInput(pw, "outer\n")
	waitResult(t, ch)
	if len(ed.restored) != 0 {
		t.Error("editor state saved although reentry is disabled")
	}
}

func TestReadLine_TooDeep(t *testing.T) {
	s := newState()
	for i := 0; i < MaxDepth; i++ {
		if _, err := s.enter(); err != nil {
			t.Fatalf("enter %d: %v", i+1, err)
		}
	}
	if _, err := s.enter(); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("enter past MaxDepth: %v, want ErrTooDeep", err)
	}
}

func TestAddHistory_Dedup(t *testing.T) {
	r, _, _ := newTestReadline(t, func(m *Mux) Editor { return newFakeEditor(m) })
	if !r.AddHistory("a") {
		t.Fatal("first add rejected")
	}
	if r.AddHistory("a") {
		t.Error("consecutive duplicate added")
	}
	if !r.AddHistory("b") || !r.AddHistory("a") {
		t.Error("distinct line rejected")
	}
	if got := r.History().Lines(); len(got) != 3 {
		t.Errorf("history = %v, want 3 entries", got)
	}
	if n := r.ed.(*fakeEditor).called("AddHistory"); n != 3 {
		t.Errorf("editor got %d lines, want 3", n)
	}
}

func TestWrap_NotTerminal(t *testing.T) {
	h := newFakeHost()
	defer h.tab.Close()
	r := New(h, Config{Editor: func(*EditorEnv) (Editor, error) {
		t.Fatal("editor built for a non-terminal")
		return nil, nil
	}})
	if err := r.Wrap(); err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if r.Wrapped() {
		t.Error("wrapped although input is not a terminal")
	}
	if err := r.Unwrap(); !errors.Is(err, ErrNotWrapped) {
		t.Errorf("Unwrap = %v, want ErrNotWrapped", err)
	}
}

func TestWrap_RebindsStreams(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	defer pw.Close()

	h := newFakeHost()
	defer h.tab.Close()
	h.std = stream.NewStd(pr, nil, nil)
	var ed *fakeEditor
	r := New(h, Config{Editor: func(env *EditorEnv) (Editor, error) {
		ed = newFakeEditor(env.Mux)
		return ed, nil
	}})
	if err := r.wrap(pr); err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if err := r.wrap(pr); !errors.Is(err, ErrAlreadyWrapped) {
		t.Errorf("second wrap = %v, want ErrAlreadyWrapped", err)
	}
	for _, s := range []*stream.Stream{h.std.In, h.std.Out, h.std.Err} {
		if s.Functions() == stream.FileFunctions {
			t.Errorf("%s not rebound", s.Name())
		}
	}
	if h.flag("readline") != "readline" || h.flag("tty_control") != true {
		t.Errorf("flags = %v", h.flags)
	}

	if err := r.Unwrap(); err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	for _, s := range []*stream.Stream{h.std.In, h.std.Out, h.std.Err} {
		if s.Functions() != stream.FileFunctions {
			t.Errorf("%s not restored", s.Name())
		}
	}
	if ed.called("Close") != 1 {
		t.Error("editor not closed")
	}
}
