// Package runner spawns one bounded subprocess per call: stdin is written and
// closed up front, stdout/stderr are captured up to a fixed cap, and a wall
// clock timeout force-kills the process tree.
package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// OutputCapBytes is the per-stream capture cap. Bytes past the cap are
// discarded, not buffered.
const OutputCapBytes = 64 * 1024

// Spec describes one subprocess execution.
type Spec struct {
	Command   string
	Args      []string
	Stdin     string
	WorkDir   string
	TimeoutMs int64
}

// Outcome is the raw result of one subprocess run.
type Outcome struct {
	ExitCode int
	Signaled bool
	Signal   string
	Stdout   string
	Stderr   string
	TimeMs   int64
	TimedOut bool
}

// Exited reports whether the process terminated normally with exit code 0.
func (o Outcome) Exited() bool {
	return !o.TimedOut && !o.Signaled && o.ExitCode == 0
}

// Runner executes subprocesses.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Outcome, error)
}

// ExecRunner runs subprocesses with os/exec.
type ExecRunner struct{}

// New creates an ExecRunner.
func New() *ExecRunner {
	return &ExecRunner{}
}

// Run starts the subprocess and waits for exit or timeout, whichever comes
// first. A spawn failure (missing executable, permission denied) is returned
// as an error and must be treated as a failure of the whole judging run, not
// a per-testcase outcome. Exactly one child process (tree) is created per
// call and none survives the call's return.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) (Outcome, error) {
	if spec.Command == "" {
		return Outcome{}, fmt.Errorf("run command is empty")
	}
	timeout := time.Duration(spec.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Second
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.WorkDir
	cmd.Stdin = strings.NewReader(spec.Stdin)

	stdout := newCappedBuffer(OutputCapBytes)
	stderr := newCappedBuffer(OutputCapBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("spawn %s: %w", spec.Command, err)
	}

	// Two futures race: the exit of the child and the timeout timer. The
	// timed-out flag is decided by whichever resolves first; the exit is
	// always awaited afterwards so no zombie is left behind.
	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-waitDone:
	case <-timer.C:
		timedOut = true
		killProcessGroup(cmd)
		waitErr = <-waitDone
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-waitDone
		return Outcome{}, ctx.Err()
	}
	elapsed := time.Since(start)

	outcome := Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimeMs:   elapsed.Milliseconds(),
		TimedOut: timedOut,
	}

	state := cmd.ProcessState
	if state == nil {
		return outcome, fmt.Errorf("process state unavailable: %v", waitErr)
	}
	outcome.ExitCode = state.ExitCode()
	if sig, ok := terminationSignal(state); ok {
		outcome.Signaled = true
		outcome.Signal = sig
		outcome.ExitCode = -1
	}
	return outcome, nil
}
