package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/yarl/host"
	"github.com/mattn/yarl/rl"
	"github.com/mattn/yarl/sigtab"
	"github.com/mattn/yarl/stream"
	"github.com/mattn/yarl/tty"
)

// repl reads statements through the host's input stream and evaluates
// them, one complete statement at a time.
type repl struct {
	interp host.Interpreter
	lines  *rl.Readline
	std    *stream.Std
	prompt string
	cont   string

	pending strings.Builder
	last    string
}

func newREPL(interp host.Interpreter, lines *rl.Readline, cfg *Config) *repl {
	return &repl{
		interp: interp,
		lines:  lines,
		std:    interp.Streams(),
		prompt: cfg.prompt(interp.Name()),
		cont:   cfg.ContinuationPrompt,
	}
}

func (p *repl) printf(format string, args ...any) {
	fmt.Fprintf(p.std.Out, format, args...)
	p.std.Out.Flush()
}

func (p *repl) errorf(format string, args ...any) {
	p.std.Out.Flush()
	fmt.Fprintf(p.std.Err, format, args...)
	p.std.Err.Flush()
}

// readLine reads one line with the primary or continuation prompt. The
// returned line keeps its newline unless input ended without one.
func (p *repl) readLine() (string, error) {
	in := p.std.In
	if p.pending.Len() == 0 {
		in.SetPrompt(p.prompt)
	} else {
		in.SetPrompt(p.cont)
	}
	if !p.lines.Wrapped() {
		in.WritePrompt(in.TTYMode() != stream.NoTTY)
	}
	return p.interp.Services().Input().ReadString('\n')
}

// run is the top-level loop. It returns nil at end of input or :quit.
func (p *repl) run() error {
	for {
		line, err := p.readLine()
		switch {
		case errors.Is(err, rl.ErrHostException):
			p.interp.Services().TakeException()
			p.printf("^C\n")
			p.pending.Reset()
			p.std.In.PromptNext()
			continue
		case errors.Is(err, io.EOF):
			if line == "" {
				if p.pending.Len() > 0 {
					p.errorf("Error: unexpected end of input\n")
				}
				if p.lines.Wrapped() {
					p.printf("\n")
				}
				return nil
			}
		case err != nil:
			return err
		}

		if p.pending.Len() == 0 {
			cmd := strings.TrimSpace(line)
			if cmd == "" {
				continue
			}
			if strings.HasPrefix(cmd, ":") {
				if p.command(cmd) {
					return nil
				}
				continue
			}
		}

		p.pending.WriteString(line)
		src := p.pending.String()
		if errors.Is(p.eval(src), host.ErrIncomplete) {
			if err != nil {
				// input ended inside the statement
				p.errorf("Error: unexpected end of input\n")
				return nil
			}
			continue
		}
		p.pending.Reset()
		p.remember(src)
	}
}

func (p *repl) remember(src string) {
	src = strings.TrimRight(src, "\r\n")
	p.last = src
	p.lines.AddHistory(src)
}

// eval evaluates src with the interrupt signal cancelling the evaluation
// instead of running its default action.
func (p *repl) eval(src string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tab := p.interp.Signals()
	prev := tab.Swap(os.Interrupt, sigtab.Disposition{
		Action:  sigtab.Catch,
		Owner:   p,
		Handler: func(os.Signal) { cancel() },
	})
	defer tab.Set(os.Interrupt, prev)

	out, err := p.interp.Eval(ctx, src)
	p.std.Out.Flush()
	switch {
	case errors.Is(err, host.ErrIncomplete):
		return err
	case ctx.Err() != nil:
		if !quiet {
			p.errorf("\n[interrupted]\n")
		}
		return ctx.Err()
	case err != nil:
		p.errorf("Error: %v\n", err)
		return err
	}
	if out != "" {
		p.printf("%s\n", out)
	}
	return nil
}

const helpText = `Commands:
  :history [n]     show the last n statements (all by default)
  :history clear   forget all statements
  :edit            edit the last statement in $EDITOR and run it
  :help            show this help
  :quit            leave
`

// command runs a meta command and reports whether to quit.
func (p *repl) command(cmd string) bool {
	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case ":quit", ":q", ":exit":
		return true
	case ":help", ":h":
		p.printf("%s", helpText)
	case ":history":
		p.history(arg)
	case ":edit", ":e":
		p.edit()
	default:
		p.errorf("Unknown command: %s (try :help)\n", name)
	}
	return false
}

func (p *repl) history(arg string) {
	hist := p.lines.History()
	switch arg {
	case "":
		if err := historyTable(p.std.Out, hist.Lines(), 0); err != nil {
			p.errorf("Error: %v\n", err)
		}
		p.std.Out.Flush()
	case "clear":
		if !p.confirm(fmt.Sprintf("Clear %d history entries? [y/N]: ", hist.Len())) {
			return
		}
		hist.Clear()
		if !quiet {
			p.errorf("[history cleared]\n")
		}
	default:
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			p.errorf("Usage: :history [n|clear]\n")
			return
		}
		if err := historyTable(p.std.Out, hist.Lines(), n); err != nil {
			p.errorf("Error: %v\n", err)
		}
		p.std.Out.Flush()
	}
}

// confirm asks a yes/no question on the terminal, bypassing the line
// editor so the answer does not enter the history.
func (p *repl) confirm(question string) bool {
	f := p.std.In.File()
	if f == nil || !tty.IsTerminal(int(f.Fd())) {
		return false
	}
	p.std.Out.Flush()
	var response string
	var err error
	if p.lines.Wrapped() {
		response, err = p.lines.ReadAnswer(question)
	} else {
		response, err = tty.ReadLine(f, os.Stderr, question)
	}
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func (p *repl) edit() {
	ext := "go"
	if p.interp.Name() == "lua" {
		ext = "lua"
	}
	src, err := openEditor(p.last, ext)
	if err != nil {
		p.errorf("Error: %v\n", err)
		return
	}
	src = strings.TrimSpace(src)
	if src == "" {
		return
	}
	if !quiet {
		p.printf("%s\n", src)
	}
	if errors.Is(p.eval(src), host.ErrIncomplete) {
		p.errorf("Error: incomplete statement\n")
		return
	}
	p.remember(src)
}
