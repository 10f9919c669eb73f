// Package sigtab keeps the host's signal dispositions and applies them to
// the process through os/signal.
package sigtab

import (
	"os"
	"os/signal"
	"sync"
)

type Action int

const (
	// Default runs the host's default action for the signal.
	Default Action = iota
	// Ignore drops the signal.
	Ignore
	// Catch runs Handler.
	Catch
)

func (a Action) String() string {
	switch a {
	case Ignore:
		return "ignore"
	case Catch:
		return "catch"
	}
	return "default"
}

type Handler func(sig os.Signal)

// Disposition is what happens when a signal is raised. Owner identifies
// who installed a Catch handler, since funcs cannot be compared.
type Disposition struct {
	Action  Action
	Handler Handler
	Owner   any
}

// Same reports whether two dispositions were installed by the same party
// with the same action.
func (d Disposition) Same(o Disposition) bool {
	return d.Action == o.Action && d.Owner == o.Owner
}

// OS is the process-level signal facility. Tests substitute a recorder.
type OS interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Reset(sig ...os.Signal)
	Ignore(sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type processOS struct{}

func (processOS) Notify(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) }
func (processOS) Reset(sig ...os.Signal)                      { signal.Reset(sig...) }
func (processOS) Ignore(sig ...os.Signal)                     { signal.Ignore(sig...) }
func (processOS) Stop(c chan<- os.Signal)                     { signal.Stop(c) }

// Process is the real signal facility.
var Process OS = processOS{}

// Table maps signals to dispositions. Default actions are supplied by the
// host with SetDefault; a signal without one is dropped when raised.
type Table struct {
	mu       sync.Mutex
	sys      OS
	disp     map[os.Signal]Disposition
	defaults map[os.Signal]Handler

	ch   chan os.Signal
	done chan struct{}
	once sync.Once
}

// New returns a table using sys. A nil sys means the real process.
func New(sys OS) *Table {
	if sys == nil {
		sys = Process
	}
	t := &Table{
		sys:      sys,
		disp:     map[os.Signal]Disposition{},
		defaults: map[os.Signal]Handler{},
		ch:       make(chan os.Signal, 8),
		done:     make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *Table) loop() {
	for {
		select {
		case sig := <-t.ch:
			t.Deliver(sig)
		case <-t.done:
			return
		}
	}
}

// SetDefault registers the host's default action for sig.
func (t *Table) SetDefault(sig os.Signal, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaults[sig] = h
	if _, ok := t.disp[sig]; !ok {
		t.apply(sig, Disposition{})
	}
}

// Get returns the disposition in effect for sig.
func (t *Table) Get(sig os.Signal) Disposition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disp[sig]
}

// Set installs d for sig.
func (t *Table) Set(sig os.Signal, d Disposition) {
	t.Swap(sig, d)
}

// Swap installs d for sig and returns the disposition it replaced.
func (t *Table) Swap(sig os.Signal, d Disposition) Disposition {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.disp[sig]
	if d.Action == Default {
		delete(t.disp, sig)
	} else {
		t.disp[sig] = d
	}
	t.apply(sig, d)
	return old
}

func (t *Table) apply(sig os.Signal, d Disposition) {
	switch d.Action {
	case Catch:
		t.sys.Notify(t.ch, sig)
	case Ignore:
		t.sys.Ignore(sig)
	default:
		// Signals with a host default action stay caught so the action
		// runs in the host instead of killing the process outright.
		if _, ok := t.defaults[sig]; ok {
			t.sys.Notify(t.ch, sig)
		} else {
			t.sys.Reset(sig)
		}
	}
}

// Raise dispatches sig to its current disposition synchronously, on the
// calling goroutine. This is the host's raise facility: the disposition
// runs in the context of the caller instead of whichever goroutine the
// runtime would deliver an OS signal to.
func (t *Table) Raise(sig os.Signal) {
	t.mu.Lock()
	d := t.disp[sig]
	def := t.defaults[sig]
	t.mu.Unlock()

	switch d.Action {
	case Catch:
		if d.Handler != nil {
			d.Handler(sig)
		}
	case Ignore:
	default:
		if def != nil {
			def(sig)
		}
	}
}

// Deliver handles a signal that arrived from the operating system.
func (t *Table) Deliver(sig os.Signal) {
	t.Raise(sig)
}

// Close stops receiving OS signals and resets every disposition.
func (t *Table) Close() {
	t.once.Do(func() {
		t.mu.Lock()
		for sig := range t.disp {
			t.sys.Reset(sig)
		}
		t.disp = map[os.Signal]Disposition{}
		t.mu.Unlock()
		t.sys.Stop(t.ch)
		close(t.done)
	})
}
