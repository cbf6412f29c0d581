// Package checker decides whether a candidate's output answers a testcase.
// Two strategies exist: canonicalized text comparison against the expected
// output, and delegation to a problem-supplied checker program.
package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gavel/internal/judge/result"
	"gavel/internal/judge/runner"
)

// checkerTimeLimitCapMs bounds a checker run independently of the problem's
// own limit. A checker that needs more than this is broken.
const checkerTimeLimitCapMs = 2000

// Case is one verification request.
type Case struct {
	Input    string
	Expected string
	Actual   string
}

// Judgment is the outcome of verifying a single case.
type Judgment struct {
	Status     result.Status
	Diagnostic string
}

// Verifier maps a candidate's output to Accepted or a failure status.
type Verifier interface {
	Verify(ctx context.Context, c Case) Judgment
}

// TextVerifier compares normalized output against the normalized expected
// answer.
type TextVerifier struct{}

func (TextVerifier) Verify(_ context.Context, c Case) Judgment {
	if Normalize(c.Actual) == Normalize(c.Expected) {
		return Judgment{Status: result.StatusAccepted}
	}
	return Judgment{Status: result.StatusWrongAnswer}
}

// checkerPayload is the document fed to a checker program on stdin.
type checkerPayload struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Output         string `json:"output"`
}

// CheckerVerifier runs a problem-supplied checker program for every case.
// The checker reads the payload from stdin and prints its verdict on stdout.
// Any misbehavior of the checker itself (crash, timeout, unreadable verdict)
// is reported as a system fault, never charged to the contestant.
type CheckerVerifier struct {
	run       runner.Runner
	command   string
	args      []string
	workDir   string
	timeoutMs int64
}

// NewCheckerVerifier builds a verifier around a prepared checker command.
// problemTimeLimitMs caps the checker's runtime alongside the fixed ceiling;
// zero means only the ceiling applies.
func NewCheckerVerifier(run runner.Runner, command string, args []string, workDir string, problemTimeLimitMs int64) *CheckerVerifier {
	timeout := int64(checkerTimeLimitCapMs)
	if problemTimeLimitMs > 0 && problemTimeLimitMs < timeout {
		timeout = problemTimeLimitMs
	}
	return &CheckerVerifier{
		run:       run,
		command:   command,
		args:      args,
		workDir:   workDir,
		timeoutMs: timeout,
	}
}

func (v *CheckerVerifier) Verify(ctx context.Context, c Case) Judgment {
	payload, err := json.Marshal(checkerPayload{
		Input:          c.Input,
		ExpectedOutput: c.Expected,
		Output:         c.Actual,
	})
	if err != nil {
		return Judgment{Status: result.StatusSystemError, Diagnostic: fmt.Sprintf("encode checker payload: %v", err)}
	}

	out, err := v.run.Run(ctx, runner.Spec{
		Command:   v.command,
		Args:      v.args,
		Stdin:     string(payload),
		WorkDir:   v.workDir,
		TimeoutMs: v.timeoutMs,
	})
	if err != nil {
		return Judgment{Status: result.StatusSystemError, Diagnostic: fmt.Sprintf("checker failed to start: %v", err)}
	}
	if out.TimedOut {
		return Judgment{Status: result.StatusSystemError, Diagnostic: "checker timed out"}
	}
	if !out.Exited() {
		return Judgment{
			Status:     result.StatusSystemError,
			Diagnostic: fmt.Sprintf("checker exited with code %d: %s", out.ExitCode, strings.TrimSpace(out.Stderr)),
		}
	}

	accepted, ok := ParseVerdict(out.Stdout)
	if !ok {
		return Judgment{
			Status:     result.StatusSystemError,
			Diagnostic: fmt.Sprintf("unreadable checker verdict: %q", strings.TrimSpace(out.Stdout)),
		}
	}
	if accepted {
		return Judgment{Status: result.StatusAccepted}
	}
	return Judgment{Status: result.StatusWrongAnswer, Diagnostic: strings.TrimSpace(out.Stdout)}
}
