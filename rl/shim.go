package rl

import (
	"os"
	"sync"

	"github.com/mattn/yarl/sigtab"
)

// ShimState is the state of the signal shim.
type ShimState int

const (
	ShimIdle ShimState = iota
	ShimArmed
	ShimHandling
	ShimReraising
	ShimReturning
)

func (s ShimState) String() string {
	switch s {
	case ShimArmed:
		return "armed"
	case ShimHandling:
		return "handling"
	case ShimReraising:
		return "reraising"
	case ShimReturning:
		return "returning"
	}
	return "idle"
}

// frame is one activation of the shim: for every signal, the disposition
// the trampoline replaced and the disposition a caught signal is passed
// on to. They differ when a nested read replaces the trampoline of an
// outer one; the signal then goes to whatever the outer read replaced.
type frame struct {
	saved map[os.Signal]sigtab.Disposition
	prev  map[os.Signal]sigtab.Disposition
}

// shim installs the trampoline around line reads. The trampoline runs on
// whatever goroutine delivers the signal and only queues it; the queued
// signal is handled by the goroutine that owns the read.
type shim struct {
	tab     *sigtab.Table
	signals []os.Signal

	mu      sync.Mutex
	frames  []frame
	state   ShimState
	armed   bool
	pending chan os.Signal
}

func newShim(tab *sigtab.Table, signals []os.Signal) *shim {
	return &shim{
		tab:     tab,
		signals: signals,
		pending: make(chan os.Signal, 16),
	}
}

func (s *shim) trampoline() sigtab.Disposition {
	return sigtab.Disposition{Action: sigtab.Catch, Handler: s.catch, Owner: s}
}

func (s *shim) catch(sig os.Signal) {
	s.post(sig)
}

// post queues sig for the reading goroutine. It reports false when no
// trampoline is installed.
func (s *shim) post(sig os.Signal) bool {
	s.mu.Lock()
	armed := s.armed
	s.mu.Unlock()
	if !armed {
		return false
	}
	select {
	case s.pending <- sig:
	default:
	}
	return true
}

// prepare installs the trampoline for every signal, saving what it
// replaces.
func (s *shim) prepare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := frame{
		saved: make(map[os.Signal]sigtab.Disposition, len(s.signals)),
		prev:  make(map[os.Signal]sigtab.Disposition, len(s.signals)),
	}
	var below *frame
	if n := len(s.frames); n > 0 {
		below = &s.frames[n-1]
	}
	for _, sig := range s.signals {
		old := s.tab.Swap(sig, s.trampoline())
		f.saved[sig] = old
		if old.Owner == s && below != nil {
			f.prev[sig] = below.prev[sig]
		} else {
			f.prev[sig] = old
		}
	}
	s.frames = append(s.frames, f)
	s.armed = true
	s.state = ShimArmed
}

// restore reinstalls the dispositions saved by the matching prepare. It
// is a no-op without one. Signals caught by the outermost frame but not
// yet handled are raised again once the saved dispositions are back.
func (s *shim) restore() {
	s.mu.Lock()
	n := len(s.frames)
	if n == 0 {
		s.mu.Unlock()
		return
	}
	f := s.frames[n-1]
	s.frames = s.frames[:n-1]
	for i := len(s.signals) - 1; i >= 0; i-- {
		sig := s.signals[i]
		s.tab.Swap(sig, f.saved[sig])
	}
	var missed []os.Signal
	if len(s.frames) == 0 {
		s.armed = false
		s.state = ShimIdle
		missed = s.drain()
	} else {
		// the frame below is armed again if its trampoline is back
		s.armed = len(s.signals) > 0 && f.saved[s.signals[0]].Owner == s
		if s.armed {
			s.state = ShimArmed
		} else {
			s.state = ShimHandling
		}
	}
	s.mu.Unlock()

	for _, sig := range missed {
		s.tab.Raise(sig)
	}
}

func (s *shim) drain() []os.Signal {
	var sigs []os.Signal
	for {
		select {
		case sig := <-s.pending:
			sigs = append(sigs, sig)
		default:
			return sigs
		}
	}
}

// disarm puts the dispositions the top frame passes signals on to in
// place, so a second occurrence of a signal is not caught again while it
// is handled. It returns what sig is to be dispatched to.
func (s *shim) disarm(sig os.Signal) sigtab.Disposition {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ShimHandling
	n := len(s.frames)
	if n == 0 {
		return s.tab.Get(sig)
	}
	f := s.frames[n-1]
	for _, sg := range s.signals {
		s.tab.Swap(sg, f.prev[sg])
	}
	s.armed = false
	return f.prev[sig]
}

// rearm reinstalls the trampoline of the top frame after a handler
// returned.
func (s *shim) rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return
	}
	for _, sig := range s.signals {
		s.tab.Swap(sig, s.trampoline())
	}
	s.armed = true
	s.state = ShimArmed
}

func (s *shim) setState(st ShimState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *shim) State() ShimState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *shim) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}
