package rl

import (
	"github.com/mattn/yarl/sigtab"
	"github.com/mattn/yarl/stream"
)

// DispatchMode selects how much work Host.Dispatch may do.
type DispatchMode int

const (
	// DispatchNoWait runs one slice of pending host work without
	// blocking. Dispatch returns true when nothing is left to run and it
	// is safe to block on the descriptor.
	DispatchNoWait DispatchMode = iota
	// DispatchWait runs host work until the descriptor has input.
	// Dispatch returns false if it gave up because of a host exception.
	DispatchWait
	// DispatchInstalled only reports whether the host has a non-blocking
	// event dispatcher at all.
	DispatchInstalled
)

// Generator enumerates symbol completions. state is 0 for the first call
// of an enumeration and counts up; ok is false when there are no more.
type Generator func(prefix string, state int) (candidate string, ok bool)

// Host is the runtime the line reader is embedded in.
type Host interface {
	Streams() *stream.Std
	Dispatch(fd int, mode DispatchMode) bool
	// Exception returns the pending host exception, if any.
	Exception() error
	// Signals is the host signal table. Its Raise method is the host's
	// raise facility.
	Signals() *sigtab.Table
	Warning(format string, args ...any)
	SetFlag(name string, value any)
	// FileName expands a user-supplied path.
	FileName(path string) (string, error)
	Generator() Generator
}
