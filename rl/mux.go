package rl

import (
	"bytes"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/yarl/tty"
)

var (
	pasteStart = []byte("\x1b[200~")
	pasteEnd   = []byte("\x1b[201~")
)

const pollInterval = 50 * time.Millisecond

// Mux owns the terminal input descriptor and hands its bytes to the editor
// instance reading at the innermost nesting level. Editors never read the
// descriptor themselves: each level gets a View, and only the View of the
// current owner level receives terminal input. Bytes can also be injected
// into a specific level, which is how an in-flight read is cancelled.
type Mux struct {
	src io.Reader
	fd  int
	// A terminal in cooked mode reports end of file for a single read
	// when the user types the EOF character; later reads still work.
	transientEOF bool

	mu       sync.Mutex
	cond     *sync.Cond
	owners   []int
	changed  chan struct{}
	inject   map[int][]byte
	leftover []byte
	waiting  int
	err      error
	closed   bool
	done     chan struct{}
	data     chan []byte
	started  bool

	// stripPaste removes bracketed paste markers for editors that do not
	// understand them.
	stripPaste bool
	inPaste    bool

	// control maps terminal control bytes to the signal the tty driver
	// would have generated outside raw mode. It returns false when the
	// byte should be passed through.
	control func(sig os.Signal) bool

	hook          func() bool
	keyseqTimeout time.Duration
}

// NewMux returns a multiplexer reading src. fd is polled for readiness
// before each read; pass -1 when src cannot be polled.
func NewMux(src io.Reader, fd int) *Mux {
	m := &Mux{
		src:           src,
		fd:            fd,
		changed:       make(chan struct{}),
		inject:        map[int][]byte{},
		done:          make(chan struct{}),
		data:          make(chan []byte),
		keyseqTimeout: 20 * time.Millisecond,
	}
	m.cond = sync.NewCond(&m.mu)
	m.transientEOF = tty.IsTerminal(fd)
	return m
}

// broadcastLocked wakes every View waiting for a change of ownership or an
// injection.
func (m *Mux) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Push makes level the owner of terminal input.
func (m *Mux) Push(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners = append(m.owners, level)
	m.broadcastLocked()
}

// Pop releases ownership taken by Push. Levels are released in LIFO order;
// popping a level that is not on top also drops everything above it.
func (m *Mux) Pop(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.owners) - 1; i >= 0; i-- {
		if m.owners[i] == level {
			m.owners = m.owners[:i]
			break
		}
	}
	m.broadcastLocked()
}

// Owner returns the level currently receiving input, or 0.
func (m *Mux) Owner() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ownerLocked()
}

func (m *Mux) ownerLocked() int {
	if len(m.owners) == 0 {
		return 0
	}
	return m.owners[len(m.owners)-1]
}

// Inject queues b for the View of level ahead of any terminal input. The
// bytes bypass ownership and control-key filtering.
func (m *Mux) Inject(level int, b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inject[level] = append(m.inject[level], b...)
	m.broadcastLocked()
}

// Cancel makes the editor reading at level give up its line, as if the
// user had pressed the interrupt key.
func (m *Mux) Cancel(level int) {
	m.Inject(level, []byte{0x03})
}

// ClearInjected drops injected bytes not yet consumed by level.
func (m *Mux) ClearInjected(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inject, level)
}

// Discard drops typed-ahead input that has been read from the terminal
// but not yet delivered.
func (m *Mux) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leftover = nil
}

// SetHook installs the event hook run while the owner waits for input.
// The hook returns true when it is safe to block on the descriptor.
func (m *Mux) SetHook(hook func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

func (m *Mux) SetKeyseqTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyseqTimeout = d
}

func (m *Mux) SetStripPaste(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stripPaste = on
}

func (m *Mux) SetControl(f func(sig os.Signal) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.control = f
}

// Close stops the reader goroutine and wakes all Views with io.EOF.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.broadcastLocked()
	m.cond.Broadcast()
	return nil
}

// View returns the reader for level.
func (m *Mux) View(level int) io.ReadCloser {
	return &view{m: m, level: level}
}

type view struct {
	m     *Mux
	level int
}

func (v *view) Close() error { return nil }

func (v *view) Read(p []byte) (int, error) {
	return v.m.read(v.level, p)
}

func (m *Mux) startLocked() {
	if m.started {
		return
	}
	m.started = true
	go m.pump()
}

// pump reads the descriptor on demand. It only touches the descriptor
// while an owner is waiting, so other programs (an external editor, a
// cooked-mode read) can use the terminal between line reads.
func (m *Mux) pump() {
	buf := make([]byte, 1024)
	for {
		m.mu.Lock()
		for m.waiting == 0 && !m.closed {
			m.cond.Wait()
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}

		if m.fd >= 0 {
			ready, err := tty.PollIn(m.fd, pollInterval)
			if err != nil {
				m.fail(err)
				return
			}
			if !ready {
				continue
			}
			m.mu.Lock()
			idle := m.waiting == 0
			m.mu.Unlock()
			if idle {
				continue
			}
		}
		n, err := m.src.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case m.data <- chunk:
			case <-m.done:
				return
			}
		}
		if n == 0 && err == io.EOF && m.transientEOF {
			select {
			case m.data <- nil:
			case <-m.done:
				return
			}
			continue
		}
		if err != nil {
			m.fail(err)
			return
		}
	}
}

func (m *Mux) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	m.broadcastLocked()
}

func (m *Mux) read(level int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	hookActive := true
	for {
		m.mu.Lock()
		if b := m.inject[level]; len(b) > 0 {
			n := copy(p, b)
			if n == len(b) {
				delete(m.inject, level)
			} else {
				m.inject[level] = b[n:]
			}
			m.mu.Unlock()
			return n, nil
		}
		if m.closed {
			m.mu.Unlock()
			return 0, io.EOF
		}
		changed := m.changed
		if m.ownerLocked() != level {
			m.mu.Unlock()
			<-changed
			continue
		}
		if len(m.leftover) > 0 {
			n := copy(p, m.leftover)
			m.leftover = m.leftover[n:]
			m.mu.Unlock()
			return n, nil
		}
		if m.err != nil {
			err := m.err
			m.mu.Unlock()
			return 0, err
		}
		hook := m.hook
		timeout := m.keyseqTimeout
		m.startLocked()
		m.waiting++
		m.cond.Signal()
		m.mu.Unlock()

		var chunk []byte
		got := false
		if hook != nil && hookActive {
			// zero-timeout poll
			select {
			case chunk = <-m.data:
				got = true
			default:
				if hook() {
					hookActive = false
				} else {
					select {
					case chunk = <-m.data:
						got = true
					case <-changed:
					case <-time.After(timeout):
					}
				}
			}
		} else {
			select {
			case chunk = <-m.data:
				got = true
			case <-changed:
			}
		}

		m.mu.Lock()
		m.waiting--
		if got && chunk == nil {
			m.mu.Unlock()
			return 0, io.EOF
		}
		if got {
			m.leftover = append(m.leftover, m.filterLocked(chunk)...)
			if m.ownerLocked() != level {
				// ownership moved while we waited; wake the new owner
				m.broadcastLocked()
			}
		}
		m.mu.Unlock()
	}
}

// filterLocked strips bracketed paste markers when asked to and turns
// terminal control keys into signals. Control keys inside a paste are
// literal text.
func (m *Mux) filterLocked(chunk []byte) []byte {
	out := make([]byte, 0, len(chunk))
	for len(chunk) > 0 {
		if chunk[0] == 0x1b {
			if bytes.HasPrefix(chunk, pasteStart) {
				m.inPaste = true
				if !m.stripPaste {
					out = append(out, pasteStart...)
				}
				chunk = chunk[len(pasteStart):]
				continue
			}
			if bytes.HasPrefix(chunk, pasteEnd) {
				m.inPaste = false
				if !m.stripPaste {
					out = append(out, pasteEnd...)
				}
				chunk = chunk[len(pasteEnd):]
				continue
			}
		}
		if !m.inPaste && m.control != nil {
			if sig, ok := controlKeys[chunk[0]]; ok && m.control(sig) {
				chunk = chunk[1:]
				continue
			}
		}
		out = append(out, chunk[0])
		chunk = chunk[1:]
	}
	return out
}
