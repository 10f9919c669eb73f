// Package luahost serves Lua chunks typed at the prompt, run with
// gopher-lua.
package luahost

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/mattn/yarl/host"
	"github.com/mattn/yarl/stream"
)

// Host is a Lua interpreter. An LState is not safe for concurrent use, so
// evaluation and completion take turns on mu.
type Host struct {
	*host.Base
	std *stream.Std

	mu sync.Mutex
	L  *lua.LState
}

func New(std *stream.Std, opts host.Options) (*Host, error) {
	h := &Host{
		Base: host.NewBase(std, opts),
		std:  std,
		L:    lua.NewState(),
	}
	h.L.SetGlobal("print", h.L.NewFunction(h.print))
	if iolib, ok := h.L.GetGlobal("io").(*lua.LTable); ok {
		iolib.RawSetString("read", h.L.NewFunction(h.read))
	}
	h.L.PreloadModule("readline", h.loader)
	h.SetGenerator(host.Enumerate(h.complete))
	return h, nil
}

func (h *Host) Name() string { return "lua" }

// Eval runs src. A chunk that is an expression list echoes its values.
func (h *Host) Eval(ctx context.Context, src string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	L := h.L
	fn, err := L.LoadString("return " + src)
	echo := err == nil
	if err != nil {
		fn, err = L.LoadString(src)
		if err != nil {
			if incomplete(err) {
				return "", host.ErrIncomplete
			}
			return "", err
		}
	}

	L.SetContext(ctx)
	defer L.RemoveContext()
	top := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.SetTop(top)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	vals := make([]string, 0, L.GetTop()-top)
	for i := top + 1; i <= L.GetTop(); i++ {
		vals = append(vals, L.Get(i).String())
	}
	L.SetTop(top)
	if !echo {
		return "", nil
	}
	return strings.Join(vals, "\t"), nil
}

// incomplete reports whether a load failed only because the chunk ended
// too early.
func incomplete(err error) bool {
	var api *lua.ApiError
	if !errors.As(err, &api) || api.Type != lua.ApiErrorSyntax {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "at EOF") || strings.Contains(msg, "near 'EOF'") ||
		strings.Contains(msg, "<eof>")
}

func (h *Host) print(L *lua.LState) int {
	n := L.GetTop()
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			sb.WriteByte('\t')
		}
		sb.WriteString(L.ToStringMeta(L.Get(i)).String())
	}
	sb.WriteByte('\n')
	h.std.Out.WriteString(sb.String())
	return 0
}

// read replaces io.read so scripts read lines through the line reader.
func (h *Host) read(L *lua.LState) int {
	format := strings.TrimPrefix(L.OptString(1, "l"), "*")
	keep := false
	switch format {
	case "l":
	case "L":
		keep = true
	default:
		L.ArgError(1, "unsupported format")
		return 0
	}
	line, err := h.Input().ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		L.Push(lua.LNil)
		return 1
	}
	if !keep {
		line = strings.TrimSuffix(line, "\n")
	}
	L.Push(lua.LString(line))
	return 1
}

func (h *Host) loader(L *lua.LState) int {
	with := func(fn func(l host.Lines) error) lua.LGFunction {
		return func(L *lua.LState) int {
			l, err := h.Lines()
			if err == nil {
				err = fn(l)
			}
			if err != nil {
				L.Push(lua.LNil)
				L.Push(lua.LString(err.Error()))
				return 2
			}
			L.Push(lua.LTrue)
			return 1
		}
	}
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"wrap": with(func(l host.Lines) error { return l.Wrap() }),
		"read_init_file": func(L *lua.LState) int {
			p := L.CheckString(1)
			return with(func(l host.Lines) error { return l.ReadInitFile(p) })(L)
		},
		"add_history": func(L *lua.LState) int {
			line := L.CheckString(1)
			l, err := h.Lines()
			L.Push(lua.LBool(err == nil && l.AddHistory(line)))
			return 1
		},
		"write_history": func(L *lua.LState) int {
			p := L.CheckString(1)
			return with(func(l host.Lines) error { return l.WriteHistory(p) })(L)
		},
		"read_history": func(L *lua.LState) int {
			p := L.CheckString(1)
			return with(func(l host.Lines) error { return l.ReadHistory(p) })(L)
		},
	})
	L.Push(mod)
	return 1
}

var keywords = []string{
	"and", "break", "do", "else", "elseif", "end", "false", "for",
	"function", "goto", "if", "in", "local", "nil", "not", "or", "repeat",
	"return", "then", "true", "until", "while",
}

// complete lists globals and, for a dotted prefix, fields of the table
// the prefix names. It offers nothing while a chunk runs, since the
// state belongs to the chunk then.
func (h *Host) complete(prefix string) []string {
	if !h.mu.TryLock() {
		return nil
	}
	defer h.mu.Unlock()

	var out []string
	path := strings.Split(prefix, ".")
	last := path[len(path)-1]
	tbl := h.L.G.Global
	for _, name := range path[:len(path)-1] {
		next, ok := tbl.RawGetString(name).(*lua.LTable)
		if !ok {
			return nil
		}
		tbl = next
	}
	head := prefix[:len(prefix)-len(last)]
	tbl.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok && strings.HasPrefix(string(s), last) {
			out = append(out, head+string(s))
		}
	})
	if len(path) == 1 {
		for _, kw := range keywords {
			if strings.HasPrefix(kw, prefix) {
				out = append(out, kw)
			}
		}
	}
	return out
}

func (h *Host) Close() {
	h.mu.Lock()
	h.L.Close()
	h.mu.Unlock()
	h.Base.Close()
}
