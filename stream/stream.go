// Package stream implements the host-side text streams that the line
// reader rebinds. A Stream delegates its raw I/O to a Functions table, so
// several streams can share one table and be rebound together.
package stream

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
)

// TTYMode is the terminal mode a read is performed in.
type TTYMode int

const (
	// Cooked is line-buffered, edited input.
	Cooked TTYMode = iota
	// Raw delivers single keystrokes.
	Raw
	// NoTTY is input redirected from a file or pipe.
	NoTTY
)

func (m TTYMode) String() string {
	switch m {
	case Raw:
		return "raw"
	case NoTTY:
		return "notty"
	}
	return "cooked"
}

// Functions is the swappable low-level I/O table of a Stream.
type Functions struct {
	Read  func(s *Stream, p []byte) (int, error)
	Write func(s *Stream, p []byte) (int, error)
	Close func(s *Stream) error
}

// FileFunctions performs I/O directly on the stream's file.
var FileFunctions = &Functions{
	Read: func(s *Stream, p []byte) (int, error) {
		if s.file == nil {
			return 0, io.EOF
		}
		return s.file.Read(p)
	},
	Write: func(s *Stream, p []byte) (int, error) {
		if s.file == nil {
			return len(p), nil
		}
		return s.file.Write(p)
	},
	Close: func(s *Stream) error {
		if s.file == nil {
			return nil
		}
		return s.file.Close()
	},
}

var ErrClosed = errors.New("stream: closed")

// Position is the character and line count of a stream.
type Position struct {
	Chars int64
	Lines int64
	Col   int
}

type Stream struct {
	mu   sync.Mutex
	name string
	file *os.File
	fn   *Functions

	pos  Position
	mode TTYMode

	prompt     string
	promptNext bool
	out        *Stream

	protocol io.Writer
	buffered bool
	pending  bytes.Buffer
	err      error
	closed   bool
}

// New returns a stream over f. Output streams created with buffered set
// hold written data until a newline or an explicit Flush.
func New(name string, f *os.File, buffered bool) *Stream {
	return &Stream{
		name:       name,
		file:       f,
		fn:         FileFunctions,
		buffered:   buffered,
		promptNext: true,
	}
}

func (s *Stream) Name() string { return s.name }

// File returns the underlying file, or nil.
func (s *Stream) File() *os.File { return s.file }

// Fd returns the descriptor of the underlying file, or -1.
func (s *Stream) Fd() int {
	if s.file == nil {
		return -1
	}
	return int(s.file.Fd())
}

// Functions returns the I/O table currently bound to s.
func (s *Stream) Functions() *Functions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn
}

// SetFunctions binds a new I/O table and returns the previous one.
func (s *Stream) SetFunctions(fn *Functions) *Functions {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.fn
	s.fn = fn
	return old
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	fn := s.fn
	s.mu.Unlock()

	// The read function may block for a long time and may itself write
	// prompts to the linked output, so it runs unlocked.
	n, err := fn.Read(s, p)
	if n > 0 {
		s.mu.Lock()
		s.advance(p[:n])
		proto := s.protocol
		s.mu.Unlock()
		if proto != nil {
			proto.Write(p[:n])
		}
	}
	return n, err
}

func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.err != nil {
		return 0, s.err
	}
	s.advance(p)
	if s.protocol != nil {
		s.protocol.Write(p)
	}
	if !s.buffered {
		return s.writeLocked(p)
	}
	s.pending.Write(p)
	if bytes.IndexByte(p, '\n') >= 0 {
		if err := s.flushLocked(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (s *Stream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

func (s *Stream) writeLocked(p []byte) (int, error) {
	n, err := s.fn.Write(s, p)
	if err != nil {
		s.err = err
	}
	return n, err
}

// Flush writes buffered output.
func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Stream) flushLocked() error {
	if s.pending.Len() == 0 {
		return s.err
	}
	data := s.pending.Bytes()
	_, err := s.writeLocked(data)
	s.pending.Reset()
	return err
}

// Reset discards unflushed output and clears a sticky error, leaving the
// stream ready for fresh output after an interrupted operation.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Reset()
	s.err = nil
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.flushLocked()
	s.closed = true
	return s.fn.Close(s)
}

func (s *Stream) advance(p []byte) {
	for _, b := range p {
		// count runes, not continuation bytes
		if b&0xC0 == 0x80 {
			continue
		}
		s.pos.Chars++
		switch b {
		case '\n':
			s.pos.Lines++
			s.pos.Col = 0
		case '\r':
			s.pos.Col = 0
		case '\b':
			if s.pos.Col > 0 {
				s.pos.Col--
			}
		default:
			s.pos.Col++
		}
	}
}

// Position reports how much has passed through the stream.
func (s *Stream) Position() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Stream) TTYMode() TTYMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Stream) SetTTYMode(m TTYMode) TTYMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.mode
	s.mode = m
	return old
}

// LinkOutput sets the stream prompts are written to.
func (s *Stream) LinkOutput(out *Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = out
}

func (s *Stream) SetPrompt(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompt = p
}

// PromptString returns the prompt to show for the next line, or "" when
// the reader is in the middle of a line.
func (s *Stream) PromptString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.promptNext {
		return ""
	}
	return s.prompt
}

// PromptNext arms the prompt for the next line.
func (s *Stream) PromptNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptNext = true
}

// PromptTaken marks the current prompt as consumed.
func (s *Stream) PromptTaken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptNext = false
}

// WritePrompt writes the pending prompt to the linked output when write is
// set, flushes that output and consumes the prompt.
func (s *Stream) WritePrompt(write bool) error {
	s.mu.Lock()
	out := s.out
	p := s.prompt
	next := s.promptNext
	s.promptNext = false
	s.mu.Unlock()
	if out == nil {
		return nil
	}
	if write && next && p != "" {
		if _, err := out.WriteString(p); err != nil {
			return err
		}
	}
	return out.Flush()
}

// SetProtocol installs a transcript writer. Pass nil to stop.
func (s *Stream) SetProtocol(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocol = w
}

// Protocolling reports whether a transcript writer is installed.
func (s *Stream) Protocolling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocol != nil
}

// AddToProtocol records text in the transcript without writing it to the
// stream itself.
func (s *Stream) AddToProtocol(text string) {
	s.mu.Lock()
	proto := s.protocol
	s.mu.Unlock()
	if proto != nil {
		io.WriteString(proto, text)
	}
}
