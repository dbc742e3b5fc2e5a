package handoff

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/nervepipe/internal/logging"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

func TestNewCommandGateway_RequiresCommand(t *testing.T) {
	if _, err := NewCommandGateway(Config{}, nil); err == nil {
		t.Error("NewCommandGateway() with no command succeeded")
	}
}

func TestCommandGateway_Handoff(t *testing.T) {
	requireShell(t)
	var buf bytes.Buffer
	logger := logging.NewLogger("trace", &buf)

	g, err := NewCommandGateway(Config{
		Command: []string{"sh", "-c", `echo "solving $1 $2 $NERVEPIPE_RUN_ID $EXTRA"; echo warn >&2`, "solver"},
		Env:     []string{"EXTRA=yes"},
	}, logger)
	if err != nil {
		t.Fatal(err)
	}

	err = g.Handoff(context.Background(), Request{ProjectPath: "/proj", RunPath: "/proj/config/user/runs/demo.json", RunID: "r-1"})
	if err != nil {
		t.Fatalf("Handoff() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "solving /proj /proj/config/user/runs/demo.json r-1 yes") {
		t.Errorf("solver stdout not logged:\n%s", out)
	}
	if !strings.Contains(out, "stream=stderr") || !strings.Contains(out, "level=TRACE") {
		t.Errorf("solver stderr not logged at trace:\n%s", out)
	}
}

func TestCommandGateway_LongOutputLine(t *testing.T) {
	requireShell(t)
	var buf bytes.Buffer
	logger := logging.NewLogger("trace", &buf)

	script := `head -c 2000000 /dev/zero | tr '\0' a; echo; head -c 200000 /dev/zero | tr '\0' b; echo; echo done; exit 0`
	g, err := NewCommandGateway(Config{Command: []string{"sh", "-c", script, "solver"}}, logger)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- g.Handoff(context.Background(), Request{}) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Handoff() error = %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Handoff() did not return; solver output was not drained")
	}
	if !strings.Contains(buf.String(), "msg=done") {
		t.Error("output after the long line was not logged")
	}
}

func TestCommandGateway_ExitCode(t *testing.T) {
	requireShell(t)
	g, err := NewCommandGateway(Config{Command: []string{"sh", "-c", "exit 3"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	err = g.Handoff(context.Background(), Request{})
	var he *HandoffError
	if !errors.As(err, &he) {
		t.Fatalf("Handoff() error = %v, want HandoffError", err)
	}
	if he.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", he.ExitCode)
	}
}

func TestCommandGateway_MissingExecutable(t *testing.T) {
	g, err := NewCommandGateway(Config{Command: []string{filepath.Join(t.TempDir(), "no-such-solver")}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var he *HandoffError
	if err := g.Handoff(context.Background(), Request{}); !errors.As(err, &he) || he.ExitCode != -1 {
		t.Errorf("Handoff() error = %v, want start failure", err)
	}
}

func TestCommandGateway_ServerCommand(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "server-started")

	g, err := NewCommandGateway(Config{
		ServerCommand: []string{"sh", "-c", "touch " + marker + "; exec sleep 30"},
		Command:       []string{"sh", "-c", "for i in 1 2 3 4 5 6 7 8 9 10; do [ -f " + marker + " ] && exit 0; sleep 0.2; done; exit 1"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Handoff(context.Background(), Request{}); err != nil {
		t.Fatalf("Handoff() error = %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("server was not started: %v", err)
	}
}

func TestCommandGateway_IgnoresCancellation(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, err := NewCommandGateway(Config{Command: []string{"sh", "-c", "exit 0"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Handoff(ctx, Request{}); err != nil {
		t.Errorf("Handoff() with cancelled context error = %v", err)
	}
}

func TestSkipGateway(t *testing.T) {
	if err := (SkipGateway{}).Handoff(context.Background(), Request{}); !errors.Is(err, ErrHandoffSkipped) {
		t.Errorf("Handoff() = %v, want ErrHandoffSkipped", err)
	}
}
