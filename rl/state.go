package rl

import "sync"

// result is the outcome of one editor read.
type result struct {
	line string
	err  error
}

// flight is an editor read running on its helper goroutine.
type flight struct {
	level  int
	target lineTarget
	done   chan result
}

// State is the process-wide bookkeeping of the read protocol. It is
// created by New and reset when an abandoned read is detected. Nested
// reads are the only concurrency it sees, and they are strictly LIFO.
type State struct {
	mu sync.Mutex

	// nesting is the number of reads in progress.
	nesting int
	// marker is the nesting level at which a signal was last handled, or
	// -1. If it still equals the level of a new read at entry, the
	// previous read at that level never returned normally.
	marker int
	// prompt is the prompt of the innermost read.
	prompt string
	// lastLine is the line most recently added to history.
	lastLine string
	hasLast  bool

	inflight [MaxDepth + 1]*flight
}

func newState() *State {
	return &State{marker: -1}
}

// enter registers a new read and returns its level.
func (s *State) enter() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nesting >= MaxDepth {
		return 0, ErrTooDeep
	}
	s.nesting++
	return s.nesting, nil
}

// leave unregisters the read at level. A read that returned normally
// clears a marker left at its level by a signal it survived.
func (s *State) leave(level int, normal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nesting > 0 {
		s.nesting--
	}
	if normal && s.marker == level {
		s.marker = -1
	}
}

// abandoned reports whether the last read at level was left by a
// non-local exit while a signal was being handled.
func (s *State) abandoned(level int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marker == level
}

// signalled records that a signal is being handled at the current level.
func (s *State) signalled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = s.nesting
}

// reset forgets the signal bookkeeping of an abandoned read. The active
// prompt is left alone: it belongs to the read being started.
func (s *State) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = -1
}

func (s *State) Nesting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nesting
}

func (s *State) Marker() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marker
}

// Prompt returns the active prompt.
func (s *State) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// swapPrompt makes p the active prompt and returns the previous one.
func (s *State) swapPrompt(p string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.prompt
	s.prompt = p
	return old
}

func (s *State) setFlight(level int, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[level] = f
}

func (s *State) flightAt(level int) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level <= 0 || level > MaxDepth {
		return nil
	}
	return s.inflight[level]
}

func (s *State) takeFlight(level int) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.inflight[level]
	s.inflight[level] = nil
	return f
}

// remember makes line the dedup key. It reports false if line repeats
// the key.
func (s *State) remember(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLast && s.lastLine == line {
		return false
	}
	s.lastLine = line
	s.hasLast = true
	return true
}
