package rl

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const maxIncludeDepth = 10

// ReadInitFile applies the editor variables set in the inputrc-style file
// at path. Key bindings are accepted and ignored.
func (r *Readline) ReadInitFile(path string) error {
	p, err := r.host.FileName(path)
	if err != nil {
		return err
	}
	ip := &initParser{
		app:  r.cfg.AppName,
		term: os.Getenv("TERM"),
		warn: r.host.Warning,
		logf: r.logf,
		expand: func(s string) string {
			if e, err := r.host.FileName(s); err == nil {
				return e
			}
			return s
		},
	}
	s, err := ip.parse(p, r.Settings(), 0)
	if err != nil {
		return err
	}
	r.applySettings(s)
	return nil
}

type initParser struct {
	app    string
	term   string
	warn   func(format string, args ...any)
	logf   func(format string, args ...any)
	expand func(string) string
}

func (ip *initParser) parse(path string, s Settings, depth int) (Settings, error) {
	if depth > maxIncludeDepth {
		ip.warn("%s: $include nested too deeply", path)
		return s, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return s, fileError("read init file", path, err)
	}
	defer f.Close()

	// cond holds one entry per open $if: whether its branch is active.
	var cond []bool
	active := func() bool {
		for _, c := range cond {
			if !c {
				return false
			}
		}
		return true
	}

	sc := bufio.NewScanner(f)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		where := fmt.Sprintf("%s:%d", path, lineno)

		if line[0] == '$' {
			word, arg, _ := strings.Cut(line[1:], " ")
			arg = strings.TrimSpace(arg)
			switch word {
			case "if":
				cond = append(cond, ip.test(arg, s))
			case "else":
				if len(cond) == 0 {
					ip.warn("%s: $else without $if", where)
					continue
				}
				cond[len(cond)-1] = !cond[len(cond)-1]
			case "endif":
				if len(cond) == 0 {
					ip.warn("%s: $endif without $if", where)
					continue
				}
				cond = cond[:len(cond)-1]
			case "include":
				if !active() {
					continue
				}
				inc := ip.expand(arg)
				if !filepath.IsAbs(inc) {
					inc = filepath.Join(filepath.Dir(path), inc)
				}
				s, err = ip.parse(inc, s, depth+1)
				if err != nil {
					return s, err
				}
			default:
				ip.warn("%s: unknown directive $%s", where, word)
			}
			continue
		}
		if !active() {
			continue
		}

		fields := strings.Fields(line)
		if strings.EqualFold(fields[0], "set") {
			if len(fields) < 2 {
				ip.warn("%s: set without a variable", where)
				continue
			}
			val := ""
			if len(fields) > 2 {
				val = fields[2]
			}
			if err := setVariable(&s, fields[1], val); err != nil {
				ip.warn("%s: %v", where, err)
			}
			continue
		}
		ip.logf("readline: %s: key binding ignored", where)
	}
	if err := sc.Err(); err != nil {
		return s, fileError("read init file", path, err)
	}
	if len(cond) > 0 {
		ip.warn("%s: missing $endif", path)
	}
	return s, nil
}

// test evaluates the argument of $if.
func (ip *initParser) test(arg string, s Settings) bool {
	if k, v, ok := strings.Cut(arg, "="); ok {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		switch k {
		case "mode":
			return v == s.EditingMode
		case "term":
			if ip.term == v {
				return true
			}
			base, _, _ := strings.Cut(ip.term, "-")
			return base == v
		}
		return false
	}
	return strings.EqualFold(arg, ip.app)
}

func parseBool(v string) bool {
	return v == "" || strings.EqualFold(v, "on") || v == "1"
}

func setVariable(s *Settings, name, val string) error {
	switch strings.ToLower(name) {
	case "editing-mode":
		if val != "emacs" && val != "vi" {
			return fmt.Errorf("bad editing-mode %q", val)
		}
		s.EditingMode = val
	case "history-size":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("bad history-size %q", val)
		}
		s.HistorySize = n
	case "completion-ignore-case":
		s.CompletionIgnoreCase = parseBool(val)
	case "bell-style":
		switch val {
		case "none", "visible", "audible":
			s.BellStyle = val
		default:
			return fmt.Errorf("bad bell-style %q", val)
		}
	case "blink-matching-paren":
		s.BlinkMatchingParen = parseBool(val)
	case "enable-bracketed-paste":
		s.BracketedPaste = parseBool(val)
	case "keyseq-timeout":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return fmt.Errorf("bad keyseq-timeout %q", val)
		}
		s.KeyseqTimeout = time.Duration(n) * time.Millisecond
	case "show-all-if-ambiguous":
		s.ShowAllIfAmbiguous = parseBool(val)
	default:
		return fmt.Errorf("unknown variable %s", name)
	}
	return nil
}
