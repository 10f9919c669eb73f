package rl

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// History is the bounded in-memory list of entered lines. On disk it is
// one entry per line with backslash and newline escaped.
type History struct {
	mu    sync.Mutex
	lines []string
	limit int
}

func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Add appends line, dropping the oldest entries beyond the limit.
func (h *History) Add(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
	h.trimLocked()
}

func (h *History) trimLocked() {
	if h.limit > 0 && len(h.lines) > h.limit {
		h.lines = append([]string(nil), h.lines[len(h.lines)-h.limit:]...)
	}
}

// SetLimit changes the maximum number of entries. Zero or less means no
// limit.
func (h *History) SetLimit(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limit = n
	h.trimLocked()
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lines)
}

// Lines returns a copy of the entries, oldest first.
func (h *History) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = nil
}

var (
	historyEscaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	historyUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n")
)

// Write saves the entries to path, creating its directory.
func (h *History) Write(path string) error {
	lines := h.Lines()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fileError("write history", path, err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fileError("write history", path, err)
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		w.WriteString(historyEscaper.Replace(l))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fileError("write history", path, err)
	}
	return fileError("write history", path, f.Close())
}

// Read appends the entries saved in path and returns them.
func (h *History) Read(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fileError("read history", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		if sc.Text() == "" {
			continue
		}
		lines = append(lines, historyUnescaper.Replace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fileError("read history", path, err)
	}

	h.mu.Lock()
	h.lines = append(h.lines, lines...)
	h.trimLocked()
	h.mu.Unlock()
	return lines, nil
}
