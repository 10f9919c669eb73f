package rl

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Completer completes the word before the cursor. After "[" or "['" at the
// start of the line the word is a file name; anywhere else it is a host
// symbol enumerated by the host's Generator.
type Completer struct {
	gen      func() Generator
	fileName func(string) (string, error)

	mu          sync.Mutex
	ignoreCase  bool
	smart       bool
	insertClose bool
}

// NewCompleter returns a completer asking gen for the symbol generator
// and expanding directory names with fileName. Either may be nil.
func NewCompleter(gen func() Generator, fileName func(string) (string, error)) *Completer {
	return &Completer{gen: gen, fileName: fileName}
}

func (c *Completer) SetIgnoreCase(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ignoreCase = on
}

// SetSmart enables dropping the space after a unique completion of a word
// that was typed directly before the cursor.
func (c *Completer) SetSmart(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.smart = on
}

// SetInsertClose records whether the editor shows matching brackets, which
// smart completion needs to be useful.
func (c *Completer) SetInsertClose(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertClose = on
}

func isWordBreak(r rune) bool {
	return strings.ContainsRune(wordBreaks, r)
}

// wordStart returns the index the word ending at pos starts at.
func wordStart(line []rune, pos int) int {
	start := pos
	for start > 0 && !isWordBreak(line[start-1]) {
		start--
	}
	return start
}

// fileContext reports whether the word starting at start names a file.
func fileContext(line []rune, start int) bool {
	switch start {
	case 1:
		return line[0] == '['
	case 2:
		return line[0] == '[' && line[1] == '\''
	}
	return false
}

// Complete returns the start of the word before pos and the sorted full
// candidates for it. Directory candidates end in a slash.
func (c *Completer) Complete(line []rune, pos int) (int, []string) {
	if pos > len(line) {
		pos = len(line)
	}
	start := wordStart(line, pos)
	word := string(line[start:pos])
	var matches []string
	if fileContext(line, start) {
		matches = c.files(word)
	} else {
		matches = c.symbols(word)
	}
	sort.Strings(matches)
	return start, matches
}

// Do implements readline.AutoCompleter. It returns the text to insert
// after the typed word for every candidate.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	if pos > len(line) {
		pos = len(line)
	}
	start, matches := c.Complete(line, pos)
	if len(matches) == 0 {
		return nil, 0
	}
	word := line[start:pos]
	out := make([][]rune, 0, len(matches))
	for _, m := range matches {
		rs := []rune(m)
		if len(rs) < len(word) {
			continue
		}
		out = append(out, append([]rune(nil), rs[len(word):]...))
	}
	if len(out) == 1 && !strings.HasSuffix(matches[0], "/") && !c.dropSpace(line, pos) {
		out[0] = append(out[0], ' ')
	}
	return out, len(word)
}

// dropSpace reports whether a unique completion at pos should not be
// followed by a space. That is the case unless the cursor sits after a
// space, even when the word being completed is empty.
func (c *Completer) dropSpace(line []rune, pos int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.smart && c.insertClose && pos > 0 && line[pos-1] != ' '
}

func (c *Completer) hasPrefix(s, prefix string) bool {
	c.mu.Lock()
	fold := c.ignoreCase
	c.mu.Unlock()
	if fold {
		return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
	}
	return strings.HasPrefix(s, prefix)
}

func (c *Completer) symbols(word string) []string {
	if c.gen == nil {
		return nil
	}
	gen := c.gen()
	if gen == nil {
		return nil
	}
	c.mu.Lock()
	fold := c.ignoreCase
	c.mu.Unlock()

	prefix := word
	if fold {
		// the generator matches case-sensitively, so enumerate everything
		prefix = ""
	}
	seen := map[string]bool{}
	var out []string
	for state := 0; ; state++ {
		cand, ok := gen(prefix, state)
		if !ok {
			break
		}
		if seen[cand] || !c.hasPrefix(cand, word) {
			continue
		}
		seen[cand] = true
		out = append(out, strings.Clone(cand))
	}
	return out
}

func (c *Completer) files(word string) []string {
	dir, base := "", word
	if i := strings.LastIndexAny(word, "/"+string(filepath.Separator)); i >= 0 {
		dir, base = word[:i+1], word[i+1:]
	}
	path := dir
	if path == "" {
		path = "."
	}
	if c.fileName != nil {
		if p, err := c.fileName(path); err == nil {
			path = p
		}
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		if !c.hasPrefix(name, base) {
			continue
		}
		cand := dir + name
		if e.IsDir() {
			cand += "/"
		} else if e.Type()&os.ModeSymlink != 0 {
			if fi, err := os.Stat(filepath.Join(path, name)); err == nil && fi.IsDir() {
				cand += "/"
			}
		}
		out = append(out, cand)
	}
	return out
}

// parenPainter highlights the bracket matching the one before the cursor.
type parenPainter struct {
	on func() bool
}

var brackets = map[rune]rune{')': '(', ']': '[', '}': '{'}

// Paint implements readline.Painter.
func (p *parenPainter) Paint(line []rune, pos int) []rune {
	if p.on != nil && !p.on() {
		return line
	}
	i := matchingOpen(line, pos)
	if i < 0 {
		return line
	}
	out := make([]rune, 0, len(line)+8)
	out = append(out, line[:i]...)
	out = append(out, []rune("\x1b[7m")...)
	out = append(out, line[i])
	out = append(out, []rune("\x1b[0m")...)
	return append(out, line[i+1:]...)
}

// matchingOpen returns the index of the bracket opened by the closing
// bracket just before pos, or -1.
func matchingOpen(line []rune, pos int) int {
	if pos <= 0 || pos > len(line) {
		return -1
	}
	closer := line[pos-1]
	opener, ok := brackets[closer]
	if !ok {
		return -1
	}
	depth := 0
	for i := pos - 2; i >= 0; i-- {
		switch line[i] {
		case closer:
			depth++
		case opener:
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}
