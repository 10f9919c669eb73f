// Package yaegihost serves Go source typed at the prompt, evaluated with
// yaegi.
package yaegihost

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/mattn/yarl/host"
	"github.com/mattn/yarl/stream"
)

// Host is a Go interpreter.
type Host struct {
	*host.Base
	i *interp.Interpreter

	mu     sync.Mutex
	idents map[string]struct{}
	pkgs   map[string][]string
}

func New(std *stream.Std, opts host.Options) (*Host, error) {
	h := &Host{
		Base:   host.NewBase(std, opts),
		idents: map[string]struct{}{},
	}
	h.i = interp.New(interp.Options{
		Stdin:  h.Input(),
		Stdout: std.Out,
		Stderr: std.Err,
	})
	if err := h.i.Use(stdlib.Symbols); err != nil {
		h.Base.Close()
		return nil, err
	}
	exports := h.exports()
	if err := h.i.Use(exports); err != nil {
		h.Base.Close()
		return nil, err
	}
	h.pkgs = packages(stdlib.Symbols, exports)
	h.SetGenerator(host.Enumerate(h.complete))
	return h, nil
}

func (h *Host) Name() string { return "go" }

// Eval evaluates src. Expressions other than calls echo their value.
func (h *Host) Eval(ctx context.Context, src string) (string, error) {
	v, err := h.i.EvalWithContext(ctx, src)
	if err != nil {
		if incomplete(src, err) {
			return "", host.ErrIncomplete
		}
		return "", err
	}
	h.learn(src)
	expr, perr := parser.ParseExpr(src)
	if perr != nil || !v.IsValid() {
		return "", nil
	}
	if _, ok := expr.(*ast.CallExpr); ok {
		return "", nil
	}
	return fmt.Sprintf("%v", v), nil
}

// incomplete reports whether err only says that src ended too early.
func incomplete(src string, err error) bool {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return unfinished(list[0].Msg, src)
	}
	var one *scanner.Error
	if errors.As(err, &one) {
		return unfinished(one.Msg, src)
	}
	return unfinished(err.Error(), src)
}

func unfinished(msg, src string) bool {
	msg = strings.TrimSpace(msg)
	switch {
	case strings.HasSuffix(msg, "found 'EOF'"):
		return true
	case strings.HasSuffix(msg, "raw string literal not terminated"):
		return true
	case strings.Contains(msg, "expected operand, found '}'"):
		return !strings.HasSuffix(strings.TrimSpace(src), "}")
	}
	return false
}

// learn records the names src declares for completion.
func (h *Host) learn(src string) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", "package main\n"+src, 0)
	if err != nil {
		f, err = parser.ParseFile(fset, "", "package main\nfunc _() {\n"+src+"\n}", 0)
		if err != nil {
			return
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	add := func(id *ast.Ident) {
		if id != nil && id.Name != "_" {
			h.idents[id.Name] = struct{}{}
		}
	}
	ast.Inspect(f, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncDecl:
			add(n.Name)
		case *ast.TypeSpec:
			add(n.Name)
		case *ast.ValueSpec:
			for _, id := range n.Names {
				add(id)
			}
		case *ast.AssignStmt:
			if n.Tok == token.DEFINE {
				for _, e := range n.Lhs {
					if id, ok := e.(*ast.Ident); ok {
						add(id)
					}
				}
			}
		}
		return true
	})
}

// packages maps package names to their exported symbols. Export keys
// have the form "import/path/name".
func packages(sets ...interp.Exports) map[string][]string {
	pkgs := map[string][]string{}
	for _, set := range sets {
		for key, syms := range set {
			name := path.Base(key)
			for sym := range syms {
				if token.IsExported(sym) {
					pkgs[name] = append(pkgs[name], sym)
				}
			}
		}
	}
	for name, syms := range pkgs {
		sort.Strings(syms)
		pkgs[name] = syms
	}
	return pkgs
}

var predeclared = []string{
	"any", "append", "bool", "byte", "cap", "clear", "close", "complex",
	"copy", "delete", "error", "false", "float64", "func", "go", "import",
	"int", "int64", "iota", "len", "make", "map", "max", "min", "new", "nil",
	"panic", "print", "println", "range", "recover", "return", "rune",
	"string", "struct", "true", "type", "uint", "uint8", "var",
}

func (h *Host) complete(prefix string) []string {
	var out []string
	if pkg, member, ok := strings.Cut(prefix, "."); ok {
		for _, sym := range h.pkgs[pkg] {
			if strings.HasPrefix(sym, member) {
				out = append(out, pkg+"."+sym)
			}
		}
		return out
	}
	match := func(s string) {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	for _, s := range predeclared {
		match(s)
	}
	for name := range h.pkgs {
		match(name)
	}
	h.mu.Lock()
	for name := range h.idents {
		match(name)
	}
	h.mu.Unlock()
	return out
}

func (h *Host) exports() interp.Exports {
	with := func(fn func(l host.Lines) error) error {
		l, err := h.Lines()
		if err != nil {
			return err
		}
		return fn(l)
	}
	return interp.Exports{
		"readline/readline": map[string]reflect.Value{
			"Wrap": reflect.ValueOf(func() error {
				return with(func(l host.Lines) error { return l.Wrap() })
			}),
			"ReadInitFile": reflect.ValueOf(func(p string) error {
				return with(func(l host.Lines) error { return l.ReadInitFile(p) })
			}),
			"AddHistory": reflect.ValueOf(func(line string) bool {
				added := false
				with(func(l host.Lines) error {
					added = l.AddHistory(line)
					return nil
				})
				return added
			}),
			"WriteHistory": reflect.ValueOf(func(p string) error {
				return with(func(l host.Lines) error { return l.WriteHistory(p) })
			}),
			"ReadHistory": reflect.ValueOf(func(p string) error {
				return with(func(l host.Lines) error { return l.ReadHistory(p) })
			}),
		},
	}
}

func (h *Host) Close() {
	h.Base.Close()
}
