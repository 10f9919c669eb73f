package stream

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestStream_BufferedFlushOnNewline(t *testing.T) {
	var got bytes.Buffer
	s := New("out", nil, true)
	s.SetFunctions(&Functions{
		Write: func(_ *Stream, p []byte) (int, error) { return got.Write(p) },
		Close: func(*Stream) error { return nil },
	})
	s.WriteString("?- ")
	if got.Len() != 0 {
		t.Fatalf("partial line written early: %q", got.String())
	}
	s.WriteString("x\n")
	if got.String() != "?- x\n" {
		t.Errorf("flushed %q", got.String())
	}
	s.WriteString("pending")
	s.Reset()
	s.Flush()
	if got.String() != "?- x\n" {
		t.Errorf("Reset kept pending output: %q", got.String())
	}
}

func TestStream_Position(t *testing.T) {
	s := New("out", nil, false)
	s.WriteString("ab\ncdé")
	pos := s.Position()
	if pos.Chars != 6 || pos.Lines != 1 || pos.Col != 3 {
		t.Errorf("position = %+v, want 6 chars 1 line col 3", pos)
	}
}

func TestStream_Prompt(t *testing.T) {
	std := NewStd(nil, nil, nil)
	std.In.SetPrompt("| ")
	if std.In.PromptString() != "| " {
		t.Fatal("fresh stream should prompt")
	}
	std.In.PromptTaken()
	if std.In.PromptString() != "" {
		t.Error("prompt offered twice for one line")
	}
	std.In.PromptNext()
	if std.In.PromptString() != "| " {
		t.Error("PromptNext did not arm the prompt")
	}
}

func TestStd_RebindRestore(t *testing.T) {
	std := NewStd(nil, nil, nil)
	fn := &Functions{
		Read:  func(*Stream, []byte) (int, error) { return 0, nil },
		Write: FileFunctions.Write,
		Close: FileFunctions.Close,
	}
	b := std.Rebind(fn)
	for _, s := range []*Stream{std.In, std.Out, std.Err} {
		if s.Functions() != fn {
			t.Errorf("%s not rebound", s.Name())
		}
	}
	std.Restore(b)
	for _, s := range []*Stream{std.In, std.Out, std.Err} {
		if s.Functions() != FileFunctions {
			t.Errorf("%s not restored", s.Name())
		}
	}
}

func TestStream_Protocol(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in")
	if err := os.WriteFile(path, []byte("hello\n"), 0600); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var proto bytes.Buffer
	std := NewStd(f, nil, nil)
	std.SetProtocol(&proto)
	std.In.AddToProtocol("?- ")
	buf := make([]byte, 16)
	n, _ := std.In.Read(buf)
	std.Out.WriteString("yes\n")
	if got := proto.String(); got != "?- hello\nyes\n" {
		t.Errorf("protocol = %q (read %q)", got, buf[:n])
	}
}
