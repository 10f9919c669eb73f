package stream

import (
	"io"
	"os"
)

// Std is the triple of standard streams a host reads and writes through.
type Std struct {
	In  *Stream
	Out *Stream
	Err *Stream
}

// NewStd returns streams over the given files. Input prompts are written
// to out.
func NewStd(in, out, errf *os.File) *Std {
	s := &Std{
		In:  New("user_input", in, false),
		Out: New("user_output", out, true),
		Err: New("user_error", errf, false),
	}
	s.In.LinkOutput(s.Out)
	return s
}

// Bound is a snapshot of the tables bound to a Std, used to undo Rebind.
type Bound [3]*Functions

// Rebind installs fn on all three streams at once and returns what was
// bound before.
func (s *Std) Rebind(fn *Functions) Bound {
	return Bound{
		s.In.SetFunctions(fn),
		s.Out.SetFunctions(fn),
		s.Err.SetFunctions(fn),
	}
}

// Restore undoes a Rebind.
func (s *Std) Restore(b Bound) {
	s.In.SetFunctions(b[0])
	s.Out.SetFunctions(b[1])
	s.Err.SetFunctions(b[2])
}

// SetProtocol sends a transcript of all three streams to w.
func (s *Std) SetProtocol(w io.Writer) {
	s.In.SetProtocol(w)
	s.Out.SetProtocol(w)
	s.Err.SetProtocol(w)
}

func (s *Std) Flush() {
	s.Out.Flush()
	s.Err.Flush()
}
