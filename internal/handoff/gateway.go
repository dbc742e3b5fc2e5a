// Package handoff passes control to the external finite-element solver once
// every checkpoint of a run exists.
package handoff

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/nvandessel/nervepipe/internal/logging"
)

// ErrHandoffSkipped is returned by SkipGateway. The orchestrator stops
// before finalization when it sees it.
var ErrHandoffSkipped = errors.New("handoff skipped")

// Request describes one handoff.
type Request struct {
	ProjectPath string
	RunPath     string
	RunID       string
}

// Gateway runs the external solver and blocks until it is done.
type Gateway interface {
	Handoff(ctx context.Context, req Request) error
}

// HandoffError reports a solver that exited unsuccessfully.
type HandoffError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *HandoffError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("solver %s exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("solver %s failed: %v", e.Command, e.Err)
}

func (e *HandoffError) Unwrap() error { return e.Err }

// Config is the solver invocation.
type Config struct {
	// Command is the solver executable and leading arguments. The project
	// and run paths are appended.
	Command []string
	// ServerCommand, when set, is started in the background before Command
	// and killed once Command returns.
	ServerCommand []string
	// Env is appended to the current environment.
	Env []string
}

// CommandGateway runs the solver as a child process.
type CommandGateway struct {
	cfg    Config
	logger *slog.Logger
}

// NewCommandGateway returns a gateway for cfg. A nil logger discards solver
// output.
func NewCommandGateway(cfg Config, logger *slog.Logger) (*CommandGateway, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.New("solver command is not configured")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &CommandGateway{cfg: cfg, logger: logger}, nil
}

// Handoff runs the solver and waits for it. The solver is not tied to ctx:
// once started it runs to completion.
func (g *CommandGateway) Handoff(ctx context.Context, req Request) error {
	env := append(os.Environ(), g.cfg.Env...)
	env = append(env, "NERVEPIPE_RUN_ID="+req.RunID)

	if len(g.cfg.ServerCommand) > 0 {
		server := exec.Command(g.cfg.ServerCommand[0], g.cfg.ServerCommand[1:]...)
		server.Env = env
		if err := server.Start(); err != nil {
			return &HandoffError{Command: g.cfg.ServerCommand[0], ExitCode: -1, Err: err}
		}
		g.logger.Debug("solver server started", "pid", server.Process.Pid)
		defer func() {
			server.Process.Kill()
			server.Wait()
			g.logger.Debug("solver server stopped")
		}()
	}

	args := append(append([]string{}, g.cfg.Command[1:]...), req.ProjectPath, req.RunPath)
	cmd := exec.Command(g.cfg.Command[0], args...)
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("solver stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("solver stderr: %w", err)
	}

	g.logger.Info("handing off to solver", "command", g.cfg.Command[0], "run", req.RunPath, "run_id", req.RunID)
	if err := cmd.Start(); err != nil {
		return &HandoffError{Command: g.cfg.Command[0], ExitCode: -1, Err: err}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go g.stream(&wg, stdout, "stdout")
	go g.stream(&wg, stderr, "stderr")
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &HandoffError{Command: g.cfg.Command[0], ExitCode: exitErr.ExitCode(), Err: err}
		}
		return &HandoffError{Command: g.cfg.Command[0], ExitCode: -1, Err: err}
	}
	g.logger.Info("solver finished", "run_id", req.RunID)
	return nil
}

func (g *CommandGateway) stream(wg *sync.WaitGroup, r io.Reader, name string) {
	defer wg.Done()
	// Drained to EOF whatever the line length, or the solver blocks on a
	// full pipe.
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			g.logger.Log(context.Background(), logging.LevelTrace, line, "stream", name)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				g.logger.Warn("reading solver output", "stream", name, "error", err)
				io.Copy(io.Discard, r)
			}
			return
		}
	}
}

// SkipGateway prepares runs without solving them.
type SkipGateway struct{}

// Handoff returns ErrHandoffSkipped.
func (SkipGateway) Handoff(context.Context, Request) error {
	return ErrHandoffSkipped
}
