// Package engine compiles submissions, executes them against testcase
// suites under time and memory limits, verifies their output and aggregates
// the per-testcase outcomes into a verdict and score.
package engine

import (
	"context"
	"fmt"
	"strings"

	"gavel/internal/judge/checker"
	"gavel/internal/judge/language"
	"gavel/internal/judge/memprobe"
	"gavel/internal/judge/result"
	"gavel/internal/judge/runner"
	"gavel/internal/judge/workspace"
	"gavel/pkg/utils/logger"

	"go.uber.org/zap"
)

// Engine drives judging runs. It holds no cross-run mutable state; the
// memory probe is resolved once at construction and shared read-only.
type Engine struct {
	run      runner.Runner
	probe    *memprobe.Probe
	workRoot string
}

// New builds an engine on top of the given process runner and memory probe.
func New(run runner.Runner, probe *memprobe.Probe, workRoot string) *Engine {
	return &Engine{run: run, probe: probe, workRoot: workRoot}
}

// prepared is a compiled-and-ready program inside a workspace.
type prepared struct {
	ws      *workspace.Workspace
	runArgv []string
}

// prepare writes source into a fresh workspace and compiles it. A compile
// failure comes back in the outcome with ws already released; infrastructure
// failures return an error with ws released as well.
func (e *Engine) prepare(ctx context.Context, lang *language.Language, source, label string) (*prepared, compileOutcome, error) {
	ws, err := workspace.New(e.workRoot, label)
	if err != nil {
		return nil, compileOutcome{}, err
	}

	srcPath, err := ws.WriteFile(lang.SourceFileName("main"), []byte(source), 0o644)
	if err != nil {
		ws.Close()
		return nil, compileOutcome{}, err
	}
	exePath := ws.Path("app")

	out, err := e.compile(ctx, lang, srcPath, exePath, ws.Dir())
	if err != nil {
		ws.Close()
		return nil, compileOutcome{}, fmt.Errorf("compile %s: %w", label, err)
	}
	if !out.OK {
		ws.Close()
		return nil, out, nil
	}

	argv := lang.RunCommand.Resolve(language.Vars{Src: srcPath, Exe: exePath, WorkDir: ws.Dir()})
	return &prepared{ws: ws, runArgv: argv}, out, nil
}

// Judge runs the full testcase suite for a submission. Errors are
// infrastructure failures (workspace I/O, spawn failure); the caller maps
// them to a submission-level System Error with score 0. Every classified
// per-testcase condition comes back inside the JudgeResult instead.
func (e *Engine) Judge(ctx context.Context, req JudgeRequest) (result.JudgeResult, error) {
	cand, compiled, err := e.prepare(ctx, req.Language, req.SourceCode, "judge")
	if err != nil {
		return result.JudgeResult{}, err
	}
	if cand == nil {
		return result.JudgeResult{
			Verdict:       result.StatusCompileError,
			CompileOutput: compiled.Output,
		}, nil
	}
	defer cand.ws.Close()

	verify, checkerWS, setupErr := e.setupVerifier(ctx, req)
	if checkerWS != nil {
		defer checkerWS.Close()
	}
	if setupErr != nil {
		logger.Warn(ctx, "checker setup failed",
			zap.Int64("problem_id", req.Problem.ID),
			zap.Error(setupErr))
		return result.JudgeResult{
			Verdict:       result.StatusSystemError,
			CompileOutput: compiled.Output,
			Diagnostic:    setupErr.Error(),
		}, nil
	}

	res := result.JudgeResult{
		Verdict:       result.StatusAccepted,
		CompileOutput: compiled.Output,
		Results:       make([]result.TestcaseResult, 0, len(req.Testcases)),
	}
	for i, tc := range req.Testcases {
		tr, err := e.runTestcase(ctx, cand, req.Problem, req.Language, tc, i, verify)
		if err != nil {
			return result.JudgeResult{}, err
		}
		res.Results = append(res.Results, tr)
		if res.Verdict == result.StatusAccepted && tr.Status != result.StatusAccepted {
			res.Verdict = tr.Status
		}
		if tr.TimeMs > res.MaxTimeMs {
			res.MaxTimeMs = tr.TimeMs
		}
		if tr.MemoryKB != nil && (res.MaxMemoryKB == nil || *tr.MemoryKB > *res.MaxMemoryKB) {
			kb := *tr.MemoryKB
			res.MaxMemoryKB = &kb
		}
		if req.OnResult != nil {
			req.OnResult(tr)
		}
	}

	res.Score = score(req.Problem, req.Groups, res.Results)
	return res, nil
}

// setupVerifier picks the verification strategy. For custom judging the
// checker source is compiled into its own workspace; any failure there is a
// submission-level System Error (the contestant is never charged for a
// broken checker).
func (e *Engine) setupVerifier(ctx context.Context, req JudgeRequest) (checker.Verifier, *workspace.Workspace, error) {
	if req.Problem.JudgeType != JudgeTypeCustom {
		return checker.TextVerifier{}, nil, nil
	}
	if req.Checker == nil || req.Checker.Language == nil {
		return nil, nil, fmt.Errorf("custom judge without a checker")
	}

	chk, compiled, err := e.prepare(ctx, req.Checker.Language, req.Checker.Source, "checker")
	if err != nil {
		return nil, nil, err
	}
	if chk == nil {
		return nil, nil, fmt.Errorf("checker compilation failed: %s", compiled.Output)
	}
	if len(chk.runArgv) == 0 {
		chk.ws.Close()
		return nil, nil, fmt.Errorf("checker language %q has no run command", req.Checker.Language.Key)
	}
	v := checker.NewCheckerVerifier(e.run, chk.runArgv[0], chk.runArgv[1:], chk.ws.Dir(), req.Problem.TimeLimitMs)
	return v, chk.ws, nil
}

// runTestcase executes one testcase and classifies the outcome.
func (e *Engine) runTestcase(ctx context.Context, cand *prepared, prob Problem, lang *language.Language, tc Testcase, order int, verify checker.Verifier) (result.TestcaseResult, error) {
	tr := result.TestcaseResult{
		TestcaseID: tc.ID,
		Name:       tc.Name,
		Order:      order,
		GroupID:    tc.GroupID,
	}

	if len(cand.runArgv) == 0 {
		tr.Status = result.StatusSystemError
		tr.Diagnostic = fmt.Sprintf("language %q has no run command", lang.Key)
		return tr, nil
	}

	timeLimit := prob.TimeLimitMs
	if timeLimit <= 0 {
		timeLimit = lang.DefaultTimeLimitMs
	}
	memLimit := prob.MemoryLimitKB
	if memLimit <= 0 {
		memLimit = lang.DefaultMemoryLimitKB
	}

	input := checker.DecodeEscapes(tc.Input)
	spec := runner.Spec{
		Command:   cand.runArgv[0],
		Args:      cand.runArgv[1:],
		Stdin:     input,
		WorkDir:   cand.ws.Dir(),
		TimeoutMs: timeLimit,
	}
	spec, readMem := e.probe.Wrap(spec)

	out, err := e.run.Run(ctx, spec)
	if err != nil {
		return tr, fmt.Errorf("run testcase %d: %w", tc.ID, err)
	}
	tr.TimeMs = out.TimeMs
	tr.MemoryKB = readMem()
	tr.Output = out.Stdout

	switch {
	case out.TimedOut:
		tr.Status = result.StatusTimeLimit
	case !out.Exited():
		tr.Status = result.StatusRuntimeError
		tr.Diagnostic = strings.TrimSpace(out.Stderr)
	case tr.MemoryKB != nil && memLimit > 0 && *tr.MemoryKB > memLimit:
		tr.Status = result.StatusMemoryLimit
	default:
		j := verify.Verify(ctx, checker.Case{
			Input:    input,
			Expected: checker.DecodeEscapes(tc.ExpectedOutput),
			Actual:   out.Stdout,
		})
		tr.Status = j.Status
		tr.Diagnostic = j.Diagnostic
	}
	return tr, nil
}

// score aggregates points. Grouped problems sum each group whose testcases
// all passed; groups with no evaluated testcase contribute nothing.
// Ungrouped problems are all-or-nothing over the whole suite.
func score(prob Problem, groups []TestcaseGroup, results []result.TestcaseResult) int64 {
	grouped := false
	passed := make(map[int64]bool)
	seen := make(map[int64]bool)
	allAccepted := true
	for _, tr := range results {
		if tr.Status != result.StatusAccepted {
			allAccepted = false
		}
		if tr.GroupID == nil {
			continue
		}
		grouped = true
		id := *tr.GroupID
		if !seen[id] {
			seen[id] = true
			passed[id] = true
		}
		if tr.Status != result.StatusAccepted {
			passed[id] = false
		}
	}

	if !grouped {
		if allAccepted && len(results) > 0 {
			return prob.TotalPoints
		}
		return 0
	}

	var total int64
	for _, g := range groups {
		if seen[g.ID] && passed[g.ID] {
			total += g.Points
		}
	}
	return total
}

// RunCode compiles and executes source once against caller-supplied input,
// with no verification. The per-testcase status vocabulary applies, with the
// success case reported as Ran.
func (e *Engine) RunCode(ctx context.Context, req RunCodeRequest) (result.RunCodeResult, error) {
	cand, compiled, err := e.prepare(ctx, req.Language, req.SourceCode, "run")
	if err != nil {
		return result.RunCodeResult{}, err
	}
	if cand == nil {
		return result.RunCodeResult{
			Status:        result.StatusCompileError,
			CompileOutput: compiled.Output,
		}, nil
	}
	defer cand.ws.Close()

	res := result.RunCodeResult{CompileOutput: compiled.Output}
	if len(cand.runArgv) == 0 {
		res.Status = result.StatusSystemError
		res.Stderr = fmt.Sprintf("language %q has no run command", req.Language.Key)
		return res, nil
	}

	timeLimit := req.Problem.TimeLimitMs
	if timeLimit <= 0 {
		timeLimit = req.Language.DefaultTimeLimitMs
	}
	memLimit := req.Problem.MemoryLimitKB
	if memLimit <= 0 {
		memLimit = req.Language.DefaultMemoryLimitKB
	}

	spec := runner.Spec{
		Command:   cand.runArgv[0],
		Args:      cand.runArgv[1:],
		Stdin:     checker.DecodeEscapes(req.Input),
		WorkDir:   cand.ws.Dir(),
		TimeoutMs: timeLimit,
	}
	spec, readMem := e.probe.Wrap(spec)

	out, err := e.run.Run(ctx, spec)
	if err != nil {
		return result.RunCodeResult{}, err
	}
	res.TimeMs = out.TimeMs
	res.MemoryKB = readMem()
	res.Output = out.Stdout
	res.Stderr = out.Stderr

	switch {
	case out.TimedOut:
		res.Status = result.StatusTimeLimit
	case !out.Exited():
		res.Status = result.StatusRuntimeError
	case res.MemoryKB != nil && memLimit > 0 && *res.MemoryKB > memLimit:
		res.Status = result.StatusMemoryLimit
	default:
		res.Status = result.StatusRan
	}
	return res, nil
}
