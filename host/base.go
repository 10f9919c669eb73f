// Package host provides the runtime services an interpreter offers the
// line reader: event dispatch, pending exceptions, warnings, flags, file
// name expansion and a signal table with default actions.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/yarl/rl"
	"github.com/mattn/yarl/sigtab"
	"github.com/mattn/yarl/stream"
	"github.com/mattn/yarl/tty"
)

// ErrInterrupt is the exception the default interrupt action leaves
// pending.
var ErrInterrupt = errors.New("interrupted")

// ErrIncomplete is returned by Eval when the source needs more lines.
var ErrIncomplete = errors.New("incomplete input")

// Interpreter is a language runtime the line reader can serve.
type Interpreter interface {
	rl.Host
	Name() string
	// Eval runs src and returns the text to echo for its value, if any.
	Eval(ctx context.Context, src string) (string, error)
	// Services returns the shared runtime services.
	Services() *Base
	Close()
}

// Lines is the part of the line reader scripts may drive.
type Lines interface {
	Wrap() error
	ReadInitFile(path string) error
	AddHistory(line string) bool
	WriteHistory(path string) error
	ReadHistory(path string) error
}

// Abort is the panic value of an aborting interrupt. It unwinds to the
// top-level loop.
type Abort struct{}

// Options configure a Base.
type Options struct {
	// EventHook makes Dispatch report an installed event dispatcher, so
	// posted tasks run while a line is being edited.
	EventHook bool
	// AbortOnInterrupt makes the default interrupt action panic with
	// Abort instead of leaving ErrInterrupt pending. Only raises made on
	// a goroutine that recovers Abort may then reach the default action.
	AbortOnInterrupt bool
	// Exit ends the process. Default os.Exit.
	Exit func(code int)
	// OS is the signal facility. Default sigtab.Process.
	OS sigtab.OS
	// InputSize is the buffer size of Input. Default 4096.
	InputSize int
}

// Base implements the services shared by all hosts. Hosts embed it and
// add evaluation and symbol completion.
type Base struct {
	std  *stream.Std
	tab  *sigtab.Table
	opts Options

	mu       sync.Mutex
	tasks    []func()
	busy     int
	exc      error
	flags    map[string]any
	gen      rl.Generator
	lines    Lines
	input    *bufio.Reader
	atExit   []func()
	exited   bool
	abortInt bool
}

func NewBase(std *stream.Std, opts Options) *Base {
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	b := &Base{
		std:      std,
		tab:      sigtab.New(opts.OS),
		opts:     opts,
		flags:    map[string]any{},
		abortInt: opts.AbortOnInterrupt,
	}
	b.tab.SetDefault(os.Interrupt, b.interrupt)
	for _, sig := range sigtab.Terminates {
		b.tab.SetDefault(sig, b.terminate)
	}
	for _, sig := range sigtab.Stops {
		b.tab.SetDefault(sig, func(os.Signal) { tty.Stop() })
	}
	return b
}

func (b *Base) interrupt(os.Signal) {
	b.mu.Lock()
	abort := b.abortInt
	b.mu.Unlock()
	if abort {
		panic(Abort{})
	}
	b.SetException(ErrInterrupt)
}

func (b *Base) terminate(sig os.Signal) {
	b.Exit(128 + sigtab.Number(sig))
}

// SetAbortOnInterrupt switches the default interrupt action.
func (b *Base) SetAbortOnInterrupt(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.abortInt = on
}

func (b *Base) Services() *Base { return b }

func (b *Base) Streams() *stream.Std { return b.std }

// Input returns the reader all line input goes through, so that the
// top-level loop and scripts reading standard input share one buffer.
func (b *Base) Input() *bufio.Reader {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.input == nil {
		size := b.opts.InputSize
		if size <= 0 {
			size = 4096
		}
		b.input = bufio.NewReaderSize(b.std.In, size)
	}
	return b.input
}

// SetLines makes l available to scripts.
func (b *Base) SetLines(l Lines) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = l
}

// Lines returns the line reader scripts drive, or an error if there is
// none.
func (b *Base) Lines() (Lines, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lines == nil {
		return nil, rl.ErrNotWrapped
	}
	return b.lines, nil
}

func (b *Base) Signals() *sigtab.Table { return b.tab }

// AtExit registers fn to run before the process exits. Hooks run in
// reverse order of registration.
func (b *Base) AtExit(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.atExit = append(b.atExit, fn)
}

// Shutdown runs the exit hooks, once.
func (b *Base) Shutdown() {
	b.mu.Lock()
	hooks := b.atExit
	first := !b.exited
	b.exited = true
	b.mu.Unlock()
	if !first {
		return
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	b.std.Flush()
}

// Exit runs the exit hooks and ends the process with code.
func (b *Base) Exit(code int) {
	b.Shutdown()
	b.opts.Exit(code)
}

// Post queues fn to run on the next dispatch.
func (b *Base) Post(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = append(b.tasks, fn)
}

// Go runs fn in the background. Dispatch does not report the host idle
// while it runs; fn should Post whatever it wants done in the host.
func (b *Base) Go(fn func()) {
	b.mu.Lock()
	b.busy++
	b.mu.Unlock()
	go func() {
		defer func() {
			b.mu.Lock()
			b.busy--
			b.mu.Unlock()
		}()
		fn()
	}()
}

// runOne runs one queued task and reports whether the host is idle
// afterwards.
func (b *Base) runOne() bool {
	b.mu.Lock()
	var task func()
	if len(b.tasks) > 0 {
		task = b.tasks[0]
		b.tasks = b.tasks[1:]
	}
	b.mu.Unlock()
	if task != nil {
		task()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tasks) == 0 && b.busy == 0
}

const waitPoll = 50 * time.Millisecond

// Dispatch runs pending host work. See rl.DispatchMode.
func (b *Base) Dispatch(fd int, mode rl.DispatchMode) bool {
	switch mode {
	case rl.DispatchInstalled:
		return b.opts.EventHook
	case rl.DispatchNoWait:
		return b.runOne()
	}
	for {
		for {
			idle := b.runOne()
			if b.Exception() != nil {
				return false
			}
			if idle || b.queued() == 0 {
				break
			}
		}
		if fd < 0 {
			return true
		}
		ready, err := tty.PollIn(fd, waitPoll)
		if err != nil || ready {
			return true
		}
	}
}

func (b *Base) queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tasks)
}

// Exception returns the pending exception.
func (b *Base) Exception() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exc
}

func (b *Base) SetException(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exc = err
}

// TakeException returns and clears the pending exception.
func (b *Base) TakeException() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.exc
	b.exc = nil
	return err
}

// Warning prints a warning on the error stream.
func (b *Base) Warning(format string, args ...any) {
	b.std.Out.Flush()
	fmt.Fprintf(b.std.Err, "Warning: "+format+"\n", args...)
	b.std.Err.Flush()
}

func (b *Base) SetFlag(name string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flags[name] = value
}

func (b *Base) Flag(name string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flags[name]
}

// FileName expands a leading ~ and $VAR references in path.
func (b *Base) FileName(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", path, err)
		}
		path = filepath.Join(home, path[1:])
	}
	if strings.Contains(path, "$") {
		path = os.ExpandEnv(path)
	}
	return path, nil
}

func (b *Base) SetGenerator(g rl.Generator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen = g
}

func (b *Base) Generator() rl.Generator {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// Enumerate adapts a function listing all completions of a prefix to the
// generator protocol.
func Enumerate(list func(prefix string) []string) rl.Generator {
	var mu sync.Mutex
	var cands []string
	return func(prefix string, state int) (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		if state == 0 {
			cands = list(prefix)
		}
		if state >= len(cands) {
			return "", false
		}
		return cands[state], true
	}
}

func (b *Base) Close() {
	b.tab.Close()
}
