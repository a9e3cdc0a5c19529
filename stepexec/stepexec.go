// Package stepexec executes one compiled step: it tokenizes the command,
// spawns the child process through an injectable Launcher, streams merged
// stdout/stderr to a listener and a per-step log file, and reports the
// step's terminal status. Spawning follows the same os/exec idiom the
// teacher's local command runner used; cancellation follows the same
// context-race-against-process-wait pattern the teacher's SSH connector
// used for its remote sessions.
package stepexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/mensylisir/stc/common"
	"github.com/mensylisir/stc/flow"
	"github.com/mensylisir/stc/listener"
	"github.com/mensylisir/stc/status"
)

// sigtermGrace is how long a cancelled step's process is given to exit
// after SIGTERM before it is killed.
const sigtermGrace = 250 * time.Millisecond

// StepProcessor runs one step's command to completion.
type StepProcessor struct {
	launcher Launcher
}

// New returns a StepProcessor using launcher, or DefaultLauncher if nil.
func New(launcher Launcher) *StepProcessor {
	if launcher == nil {
		launcher = DefaultLauncher
	}
	return &StepProcessor{launcher: launcher}
}

// Execute runs step to completion: start, delay, tokenize, spawn, stream,
// wait, report. It returns the step's terminal status; callers never see
// IN_PROGRESS out of Execute.
func (p *StepProcessor) Execute(ctx context.Context, step *flow.Step, logDir string, l listener.Listener) status.Status {
	l.OnStart(step.Name, step.Command)

	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			l.OnCompletion(step.Name, status.Skipped, ctx.Err())
			return status.Skipped
		}
	}

	argv, err := Tokenize(step.Command)
	if err != nil {
		wrapped := errors.Wrapf(err, "stepexec: step %q", step.Name)
		l.OnCompletion(step.Name, status.Failed, wrapped)
		return status.Failed
	}
	if len(argv) == 0 {
		err := fmt.Errorf("stepexec: step %q has an empty command", step.Name)
		l.OnCompletion(step.Name, status.Failed, err)
		return status.Failed
	}
	argv = p.launcher(argv)

	logFile, logErr := openStepLog(logDir, step.Name)
	if logErr != nil {
		wrapped := errors.Wrapf(logErr, "stepexec: step %q", step.Name)
		l.OnCompletion(step.Name, status.Failed, wrapped)
		return status.Failed
	}
	defer logFile.Close()

	st, runErr := p.run(ctx, step, argv, logFile, l)
	l.OnCompletion(step.Name, st, runErr)
	return st
}

func (p *StepProcessor) run(ctx context.Context, step *flow.Step, argv []string, logFile *os.File, l listener.Listener) (status.Status, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = step.Cwd
	cmd.Env = mergeEnv(os.Environ(), step.Env)

	lw := &lineWriter{logFile: logFile, onLine: func(line string) { l.OnOutput(step.Name, line) }}
	cmd.Stdout = lw
	cmd.Stderr = lw

	if err := cmd.Start(); err != nil {
		return status.Failed, errors.Wrapf(err, "stepexec: spawning step %q", step.Name)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-time.After(sigtermGrace):
			_ = cmd.Process.Kill()
		case <-waitDone:
		}
		lw.flush()
		return status.Skipped, ctx.Err()

	case waitErr := <-waitDone:
		lw.flush()
		if waitErr == nil {
			return status.Succeeded, nil
		}
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return status.Failed, errors.Wrapf(waitErr, "stepexec: running step %q", step.Name)
		}
		exitCode := -1
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			exitCode = ws.ExitStatus()
		}
		return status.Failed, fmt.Errorf("stepexec: step %q exited %d", step.Name, exitCode)
	}
}

// EvaluateCommand tokenizes and runs command to completion (through the
// same launcher Execute uses) and reports whether it exited zero. It is
// used for a step's if/unless predicates: no log file, no listener
// output, just a pass/fail outcome. An empty command evaluates true.
func (p *StepProcessor) EvaluateCommand(ctx context.Context, command, cwd string, env map[string]string) (bool, error) {
	argv, err := Tokenize(command)
	if err != nil {
		return false, errors.Wrap(err, "stepexec: evaluating predicate")
	}
	if len(argv) == 0 {
		return true, nil
	}
	argv = p.launcher(argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = mergeEnv(os.Environ(), env)

	err = cmd.Run()
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if _, ok := err.(*exec.ExitError); ok {
		return false, nil
	}
	return false, errors.Wrap(err, "stepexec: running predicate")
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	out = append(out, base...)
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}

func openStepLog(logDir, stepName string) (*os.File, error) {
	if err := os.MkdirAll(logDir, common.FileMode0755); err != nil {
		return nil, errors.Wrapf(err, "creating log directory %s", logDir)
	}
	path := logDir + string(os.PathSeparator) + stepName + ".log"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, common.FileMode0644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating log file %s", path)
	}
	return f, nil
}

// lineWriter splits a byte stream into lines, forwarding each complete
// line to onLine and appending the raw bytes to logFile. It is safe for
// concurrent use since os/exec runs separate copier goroutines for stdout
// and stderr when they share one Writer.
type lineWriter struct {
	mu      sync.Mutex
	logFile *os.File
	onLine  func(line string)
	partial bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.logFile.Write(p); err != nil {
		return 0, err
	}

	w.partial.Write(p)
	for {
		data := w.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(data[:idx]), "\r")
		w.onLine(line)
		w.partial.Next(idx + 1)
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.partial.Len() > 0 {
		w.onLine(w.partial.String())
		w.partial.Reset()
	}
}

var _ io.Writer = (*lineWriter)(nil)
