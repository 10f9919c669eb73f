package rl

import (
	"io"
	"os"
	"time"
)

// MaxDepth bounds the nesting of line reads.
const MaxDepth = 8

// Settings are the editor variables an init file can change.
type Settings struct {
	EditingMode          string
	HistorySize          int
	CompletionIgnoreCase bool
	BellStyle            string
	BlinkMatchingParen   bool
	BracketedPaste       bool
	KeyseqTimeout        time.Duration
	ShowAllIfAmbiguous   bool
}

func DefaultSettings() Settings {
	return Settings{
		EditingMode:        "emacs",
		HistorySize:        500,
		BellStyle:          "audible",
		BlinkMatchingParen: true,
		BracketedPaste:     true,
		KeyseqTimeout:      20 * time.Millisecond,
	}
}

// Editor is a line-editing backend.
type Editor interface {
	Readline(prompt string) (string, error)
	SetPrompt(prompt string)
	// Refresh redraws the prompt and the line being edited.
	Refresh()
	// FreeLineState drops the partially entered line.
	FreeLineState()
	// CleanupAfterSignal leaves the terminal usable by the host while a
	// signal is handled.
	CleanupAfterSignal()
	// ResetAfterSignal undoes CleanupAfterSignal.
	ResetAfterSignal()
	PrepTerminal() error
	DeprepTerminal() error
	// Cancel makes the current Readline return ErrInterrupted.
	Cancel()
	AddHistory(line string)
	Apply(s Settings)
	Close() error
}

// ReentrantEditor is an Editor that can run a nested Readline while
// another one is in progress. SaveState returns a token describing the
// outer read; RestoreState makes that read current again.
type ReentrantEditor interface {
	Editor
	SaveState() int
	RestoreState(token int)
	ClearPendingInput()
	DiscardArgument()
}

// EditorEnv is what an editor backend is built from.
type EditorEnv struct {
	Mux       *Mux
	In        *os.File
	Out       io.Writer
	Err       io.Writer
	Completer *Completer
	History   *History
	Settings  Settings
}

// EditorFactory builds an editor backend.
type EditorFactory func(env *EditorEnv) (Editor, error)
