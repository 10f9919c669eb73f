package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/mattn/yarl/host"
	"github.com/mattn/yarl/host/luahost"
	"github.com/mattn/yarl/host/yaegihost"
	"github.com/mattn/yarl/rl"
	"github.com/mattn/yarl/stream"
	"github.com/mattn/yarl/tty"
)

const name = "yarl"

const version = "0.1.0"

var revision = "HEAD"

var (
	quiet   bool
	verbose bool
)

type parsedFlags struct {
	langFlag     string
	editorFlag   string
	protocolFlag string
	exprFlag     string
	noHistory    bool
	showVersion  bool
}

func parseFlags() parsedFlags {
	var f parsedFlags

	defaultLang := os.Getenv("YARL_LANG")
	if defaultLang == "" {
		defaultLang = "go"
	}

	flag.StringVar(&f.langFlag, "lang", defaultLang, "Interpreter language: go or lua")
	flag.StringVar(&f.editorFlag, "editor", "", "Line editor: readline or term (overrides config)")
	flag.StringVar(&f.protocolFlag, "protocol", "", "Write a transcript of the session to file")
	flag.StringVar(&f.exprFlag, "e", "", "Evaluate expression and exit")
	flag.BoolVar(&f.noHistory, "no-history", false, "Do not load or save history")
	flag.BoolVar(&quiet, "quiet", false, "Suppress informational messages")
	flag.BoolVar(&verbose, "verbose", false, "Trace line reads and signals")
	flag.BoolVar(&f.showVersion, "v", false, "Show version")
	flag.Parse()

	return f
}

func loadConfigurations() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		u, err := user.Current()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(u.HomeDir, ".config")
	}
	configDir = filepath.Join(configDir, name)
	if err := loadConfig(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
	return configDir
}

func newInterpreter(lang string, std *stream.Std, opts host.Options) (host.Interpreter, error) {
	switch lang {
	case "go":
		return yaegihost.New(std, opts)
	case "lua":
		return luahost.New(std, opts)
	}
	return nil, fmt.Errorf("unknown language: %s (available: go, lua)", lang)
}

func editorFactory(name string) (rl.EditorFactory, error) {
	switch name {
	case "", "readline":
		return rl.NewReadlineEditor, nil
	case "term":
		return rl.NewTermEditor, nil
	}
	return nil, fmt.Errorf("unknown editor: %s (available: readline, term)", name)
}

// loadInitFile reads the init file at path and, when watch is set, keeps
// reading it on change. A missing file is not an error.
func loadInitFile(ctx context.Context, lines *rl.Readline, path string, watch bool, w io.Writer) {
	if err := lines.ReadInitFile(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(w, "Warning: %v\n", err)
	}
	if watch {
		if err := lines.WatchInitFile(ctx, path); err != nil {
			fmt.Fprintf(w, "Warning: failed to watch init file: %v\n", err)
		}
	}
}

func tracef(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[yarl] "+format+"\n", args...)
}

func main() {
	f := parseFlags()

	if f.showVersion {
		fmt.Printf("%s %s (rev: %s/%s)\n", name, version, revision, runtime.Version())
		return
	}

	configDir := loadConfigurations()
	os.Exit(run(f, configDir))
}

func run(f parsedFlags, configDir string) int {
	if f.editorFlag != "" {
		appConfig.Editor = f.editorFlag
	}
	factory, err := editorFactory(appConfig.Editor)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	std := stream.NewStd(os.Stdin, os.Stdout, os.Stderr)
	interp, err := newInterpreter(f.langFlag, std, host.Options{
		EventHook: appConfig.EventHook,
		InputSize: appConfig.LineBufferSize,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer interp.Close()
	base := interp.Services()

	if f.protocolFlag != "" {
		pf, err := os.Create(f.protocolFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open protocol file: %v\n", err)
		} else {
			std.SetProtocol(pf)
			defer pf.Close()
		}
	}

	if f.exprFlag != "" {
		out, err := interp.Eval(context.Background(), f.exprFlag)
		std.Flush()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if out != "" {
			fmt.Fprintln(os.Stdout, out)
		}
		return 0
	}

	cfg := rl.Config{
		Editor:        factory,
		NoReentrant:   appConfig.NoReentrant,
		SmartComplete: appConfig.SmartComplete,
		Settings:      appConfig.settings(),
	}
	if verbose {
		cfg.Logf = tracef
	}
	lines := rl.New(interp, cfg)
	base.SetLines(lines)
	base.AtExit(func() { lines.Close() })

	if !tty.IsTerminal(int(os.Stdin.Fd())) {
		std.In.SetTTYMode(stream.NoTTY)
	}
	if err := lines.Wrap(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to wrap terminal: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if path := appConfig.initFile(configDir); path != "" {
		loadInitFile(ctx, lines, path, appConfig.WatchInitFile, os.Stderr)
	}

	if !f.noHistory {
		workDir, _ := os.Getwd()
		if path := resolveHistoryPath(&appConfig, configDir, workDir); path != "" {
			n, err := loadHistory(lines, path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to load history: %v\n", err)
			} else if verbose && n > 0 {
				tracef("loaded %d history entries from %s", n, path)
			}
			base.AtExit(func() {
				if err := lines.WriteHistory(path); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to save history: %v\n", err)
				}
			})
		}
	}

	if !quiet && lines.Wrapped() {
		fmt.Fprintf(os.Stderr, "%s %s [%s] (type :help for commands)\n", name, version, interp.Name())
	}

	err = newREPL(interp, lines, &appConfig).run()
	base.Shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
