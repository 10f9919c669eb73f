package host

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/mattn/yarl/rl"
	"github.com/mattn/yarl/sigtab"
	"github.com/mattn/yarl/stream"
)

type nopOS struct{}

func (nopOS) Notify(chan<- os.Signal, ...os.Signal) {}
func (nopOS) Reset(...os.Signal)                    {}
func (nopOS) Ignore(...os.Signal)                   {}
func (nopOS) Stop(chan<- os.Signal)                 {}

func newTestBase(t *testing.T, opts Options) *Base {
	t.Helper()
	opts.OS = nopOS{}
	b := NewBase(stream.NewStd(nil, nil, nil), opts)
	t.Cleanup(b.Close)
	return b
}

func TestDispatch_NoWaitRunsOneTask(t *testing.T) {
	b := newTestBase(t, Options{})
	var ran []int
	b.Post(func() { ran = append(ran, 1) })
	b.Post(func() { ran = append(ran, 2) })

	if b.Dispatch(-1, rl.DispatchNoWait) {
		t.Error("reported idle with a task still queued")
	}
	if len(ran) != 1 {
		t.Fatalf("ran %v after one slice", ran)
	}
	if !b.Dispatch(-1, rl.DispatchNoWait) {
		t.Error("not idle after draining the queue")
	}
	if len(ran) != 2 || ran[1] != 2 {
		t.Errorf("ran %v, want [1 2]", ran)
	}
}

func TestDispatch_Installed(t *testing.T) {
	if newTestBase(t, Options{}).Dispatch(-1, rl.DispatchInstalled) {
		t.Error("event hook reported without EventHook")
	}
	if !newTestBase(t, Options{EventHook: true}).Dispatch(-1, rl.DispatchInstalled) {
		t.Error("event hook not reported")
	}
}

func TestDispatch_WaitStopsOnException(t *testing.T) {
	b := newTestBase(t, Options{})
	b.Post(func() { b.SetException(errors.New("boom")) })
	b.Post(func() { t.Error("task after an exception ran") })
	if b.Dispatch(-1, rl.DispatchWait) {
		t.Error("Wait reported success with a pending exception")
	}
}

func TestDispatch_WaitReturnsWhenReadable(t *testing.T) {
	b := newTestBase(t, Options{})
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	defer pw.Close()
	ran := false
	b.Post(func() { ran = true })
	pw.Write([]byte("x"))
	if !b.Dispatch(int(pr.Fd()), rl.DispatchWait) {
		t.Error("Wait failed")
	}
	if !ran {
		t.Error("queued task not run before returning")
	}
}

func TestInterrupt_DefaultSetsException(t *testing.T) {
	b := newTestBase(t, Options{})
	b.Signals().Raise(os.Interrupt)
	if !errors.Is(b.Exception(), ErrInterrupt) {
		t.Fatalf("exception = %v, want ErrInterrupt", b.Exception())
	}
	if !errors.Is(b.TakeException(), ErrInterrupt) || b.Exception() != nil {
		t.Error("TakeException did not clear")
	}
}

func TestInterrupt_Abort(t *testing.T) {
	b := newTestBase(t, Options{AbortOnInterrupt: true})
	defer func() {
		if _, ok := recover().(Abort); !ok {
			t.Error("interrupt did not abort")
		}
	}()
	b.Signals().Raise(os.Interrupt)
}

func TestTerminate_RunsExitHooks(t *testing.T) {
	var code int
	var order []string
	b := newTestBase(t, Options{Exit: func(c int) { code = c }})
	b.AtExit(func() { order = append(order, "first") })
	b.AtExit(func() { order = append(order, "second") })

	b.Signals().Raise(syscall.SIGTERM)
	if code != 128+sigtab.Number(syscall.SIGTERM) {
		t.Errorf("exit code = %d", code)
	}
	if strings.Join(order, ",") != "second,first" {
		t.Errorf("hooks ran %v", order)
	}
	b.Exit(1)
	if len(order) != 2 {
		t.Error("exit hooks ran twice")
	}
}

func TestFileName_Expands(t *testing.T) {
	b := newTestBase(t, Options{})
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := b.FileName("~/x")
	if err != nil || got != filepath.Join(home, "x") {
		t.Errorf("FileName(~/x) = %q, %v", got, err)
	}
	t.Setenv("YARL_TEST_DIR", "/tmp/yarl")
	got, _ = b.FileName("$YARL_TEST_DIR/h")
	if got != "/tmp/yarl/h" {
		t.Errorf("FileName($YARL_TEST_DIR/h) = %q", got)
	}
}

func TestWarning(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	b := NewBase(stream.NewStd(nil, nil, pw), Options{OS: nopOS{}})
	defer b.Close()
	b.Warning("Input line too long")
	pw.Close()
	buf := make([]byte, 64)
	n, _ := pr.Read(buf)
	if got := string(buf[:n]); got != "Warning: Input line too long\n" {
		t.Errorf("warning = %q", got)
	}
}
