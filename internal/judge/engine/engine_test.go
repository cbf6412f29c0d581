package engine

import (
	"context"
	"os"
	"strings"
	"testing"

	"gavel/internal/judge/language"
	"gavel/internal/judge/memprobe"
	"gavel/internal/judge/result"
	"gavel/internal/judge/runner"
)

// fakeRunner dispatches each spec through a handler and records what ran.
type fakeRunner struct {
	handler func(runner.Spec) (runner.Outcome, error)
	specs   []runner.Spec
}

func (f *fakeRunner) Run(_ context.Context, spec runner.Spec) (runner.Outcome, error) {
	f.specs = append(f.specs, spec)
	if f.handler == nil {
		return runner.Outcome{}, nil
	}
	return f.handler(spec)
}

func interpretedLang() *language.Language {
	return &language.Language{
		Key:                "fake",
		SourceExt:          ".txt",
		RunCommand:         language.Template{"prog", "{src}"},
		Interpreted:        true,
		DefaultTimeLimitMs: 1000,
	}
}

func newFakeEngine(t *testing.T, handler func(runner.Spec) (runner.Outcome, error)) (*Engine, *fakeRunner) {
	t.Helper()
	fr := &fakeRunner{handler: handler}
	return New(fr, memprobe.Unavailable(), t.TempDir()), fr
}

func intp(v int64) *int64 { return &v }

func TestJudgeAllAcceptedUngrouped(t *testing.T) {
	eng, _ := newFakeEngine(t, func(spec runner.Spec) (runner.Outcome, error) {
		return runner.Outcome{Stdout: spec.Stdin}, nil
	})
	req := JudgeRequest{
		Language: interpretedLang(),
		Problem:  Problem{TimeLimitMs: 1000, TotalPoints: 100},
		Testcases: []Testcase{
			{ID: 1, Input: "a", ExpectedOutput: "a"},
			{ID: 2, Input: "b", ExpectedOutput: "b"},
		},
		SourceCode: "echo",
	}
	res, err := eng.Judge(context.Background(), req)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Verdict != result.StatusAccepted {
		t.Errorf("verdict = %s", res.Verdict)
	}
	if res.Score != 100 {
		t.Errorf("score = %d, want 100", res.Score)
	}
	if len(res.Results) != 2 {
		t.Errorf("results = %d, want 2", len(res.Results))
	}
}

func TestJudgeFirstFailureSetsVerdictButRunsAll(t *testing.T) {
	eng, fr := newFakeEngine(t, func(spec runner.Spec) (runner.Outcome, error) {
		if spec.Stdin == "2" {
			return runner.Outcome{TimedOut: true, TimeMs: 1000}, nil
		}
		return runner.Outcome{Stdout: "ok"}, nil
	})
	var seen []result.Status
	req := JudgeRequest{
		Language: interpretedLang(),
		Problem:  Problem{TimeLimitMs: 1000, TotalPoints: 50},
		Testcases: []Testcase{
			{ID: 1, Input: "1", ExpectedOutput: "ok"},
			{ID: 2, Input: "2", ExpectedOutput: "ok"},
			{ID: 3, Input: "3", ExpectedOutput: "nope"},
		},
		SourceCode: "src",
		OnResult:   func(tr result.TestcaseResult) { seen = append(seen, tr.Status) },
	}
	res, err := eng.Judge(context.Background(), req)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Verdict != result.StatusTimeLimit {
		t.Errorf("verdict = %s, want Time Limit Exceeded", res.Verdict)
	}
	if res.Score != 0 {
		t.Errorf("score = %d, want 0", res.Score)
	}
	if len(fr.specs) != 3 {
		t.Errorf("ran %d testcases, want all 3", len(fr.specs))
	}
	want := []result.Status{result.StatusAccepted, result.StatusTimeLimit, result.StatusWrongAnswer}
	if len(seen) != len(want) {
		t.Fatalf("OnResult fired %d times, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("OnResult[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestJudgeRuntimeErrorDominatesCorrectOutput(t *testing.T) {
	eng, _ := newFakeEngine(t, func(runner.Spec) (runner.Outcome, error) {
		return runner.Outcome{ExitCode: 1, Stdout: "42", Stderr: "boom"}, nil
	})
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language:   interpretedLang(),
		Problem:    Problem{TimeLimitMs: 1000, TotalPoints: 10},
		Testcases:  []Testcase{{ID: 1, ExpectedOutput: "42"}},
		SourceCode: "src",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Verdict != result.StatusRuntimeError {
		t.Errorf("verdict = %s, want Runtime Error", res.Verdict)
	}
	if res.Results[0].Diagnostic != "boom" {
		t.Errorf("diagnostic = %q", res.Results[0].Diagnostic)
	}
}

func TestJudgeGroupScoringAllOrNothing(t *testing.T) {
	eng, _ := newFakeEngine(t, func(spec runner.Spec) (runner.Outcome, error) {
		if spec.Stdin == "bad" {
			return runner.Outcome{Stdout: "wrong"}, nil
		}
		return runner.Outcome{Stdout: "ok"}, nil
	})
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language: interpretedLang(),
		Problem:  Problem{TimeLimitMs: 1000, TotalPoints: 100},
		Groups: []TestcaseGroup{
			{ID: 1, Points: 40},
			{ID: 2, Points: 60},
			{ID: 3, Points: 25},
		},
		Testcases: []Testcase{
			{ID: 1, Input: "x", ExpectedOutput: "ok", GroupID: intp(1)},
			{ID: 2, Input: "y", ExpectedOutput: "ok", GroupID: intp(1)},
			{ID: 3, Input: "bad", ExpectedOutput: "ok", GroupID: intp(2)},
			{ID: 4, Input: "z", ExpectedOutput: "ok", GroupID: intp(2)},
		},
		SourceCode: "src",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	// Group 1 fully passes (40), group 2 has a failure (0), group 3 has no
	// evaluated testcase and must contribute nothing.
	if res.Score != 40 {
		t.Errorf("score = %d, want 40", res.Score)
	}
	if res.Verdict != result.StatusWrongAnswer {
		t.Errorf("verdict = %s, want Wrong Answer", res.Verdict)
	}
}

func TestJudgeCompileFailure(t *testing.T) {
	eng, fr := newFakeEngine(t, func(spec runner.Spec) (runner.Outcome, error) {
		return runner.Outcome{ExitCode: 1, Stderr: "syntax error on line 3"}, nil
	})
	lang := &language.Language{
		Key:            "cc",
		SourceExt:      ".c",
		CompileCommand: language.Template{"cc", "{src}", "-o", "{exe}"},
		RunCommand:     language.Template{"{exe}"},
	}
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language:   lang,
		Problem:    Problem{TimeLimitMs: 1000, TotalPoints: 100},
		Testcases:  []Testcase{{ID: 1, ExpectedOutput: "x"}},
		SourceCode: "int main( {",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Verdict != result.StatusCompileError {
		t.Errorf("verdict = %s, want Compilation Error", res.Verdict)
	}
	if !strings.Contains(res.CompileOutput, "syntax error") {
		t.Errorf("compile output = %q", res.CompileOutput)
	}
	if res.Score != 0 {
		t.Errorf("score = %d, want 0", res.Score)
	}
	if len(fr.specs) != 1 {
		t.Errorf("ran %d processes, want compile only", len(fr.specs))
	}
	if len(res.Results) != 0 {
		t.Errorf("testcases ran after compile failure")
	}
}

func TestJudgeMissingRunCommandIsSystemError(t *testing.T) {
	eng, _ := newFakeEngine(t, nil)
	lang := &language.Language{Key: "broken", SourceExt: ".x", Interpreted: true}
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language:   lang,
		Problem:    Problem{TimeLimitMs: 1000},
		Testcases:  []Testcase{{ID: 1}},
		SourceCode: "src",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Verdict != result.StatusSystemError {
		t.Errorf("verdict = %s, want System Error", res.Verdict)
	}
}

func TestJudgeCustomCheckerMissingIsSystemError(t *testing.T) {
	eng, _ := newFakeEngine(t, nil)
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language:   interpretedLang(),
		Problem:    Problem{TimeLimitMs: 1000, JudgeType: JudgeTypeCustom},
		Testcases:  []Testcase{{ID: 1}},
		SourceCode: "src",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Verdict != result.StatusSystemError {
		t.Errorf("verdict = %s, want System Error", res.Verdict)
	}
	if res.Diagnostic == "" {
		t.Error("expected a diagnostic for the missing checker")
	}
}

func TestJudgeCustomCheckerVerdicts(t *testing.T) {
	eng, _ := newFakeEngine(t, func(spec runner.Spec) (runner.Outcome, error) {
		if spec.Command == "check" {
			if strings.Contains(spec.Stdin, `"output":"1 2 3"`) {
				return runner.Outcome{Stdout: "Accepted"}, nil
			}
			return runner.Outcome{Stdout: "Wrong Answer"}, nil
		}
		// Candidate echoes its input.
		return runner.Outcome{Stdout: spec.Stdin}, nil
	})
	checkerLang := &language.Language{
		Key:         "checklang",
		SourceExt:   ".chk",
		RunCommand:  language.Template{"check", "{src}"},
		Interpreted: true,
	}
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language: interpretedLang(),
		Problem:  Problem{TimeLimitMs: 1000, JudgeType: JudgeTypeCustom, TotalPoints: 100},
		Testcases: []Testcase{
			{ID: 1, Input: "1 2 3"},
			{ID: 2, Input: "1 2 2"},
		},
		SourceCode: "src",
		Checker:    &CheckerSpec{Language: checkerLang, Source: "chk"},
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Results[0].Status != result.StatusAccepted {
		t.Errorf("testcase 1 = %s, want Accepted", res.Results[0].Status)
	}
	if res.Results[1].Status != result.StatusWrongAnswer {
		t.Errorf("testcase 2 = %s, want Wrong Answer", res.Results[1].Status)
	}
}

func TestJudgeCheckerCrashIsSystemErrorNotWrongAnswer(t *testing.T) {
	eng, _ := newFakeEngine(t, func(spec runner.Spec) (runner.Outcome, error) {
		if spec.Command == "check" {
			return runner.Outcome{ExitCode: 2, Stderr: "panic"}, nil
		}
		return runner.Outcome{Stdout: "out"}, nil
	})
	checkerLang := &language.Language{
		Key:         "checklang",
		SourceExt:   ".chk",
		RunCommand:  language.Template{"check"},
		Interpreted: true,
	}
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language:   interpretedLang(),
		Problem:    Problem{TimeLimitMs: 1000, JudgeType: JudgeTypeCustom},
		Testcases:  []Testcase{{ID: 1, Input: "x"}},
		SourceCode: "src",
		Checker:    &CheckerSpec{Language: checkerLang, Source: "chk"},
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if got := res.Results[0].Status; got != result.StatusSystemError {
		t.Errorf("status = %s, want System Error", got)
	}
}

func TestJudgeEscapedTestcaseText(t *testing.T) {
	eng, fr := newFakeEngine(t, func(spec runner.Spec) (runner.Outcome, error) {
		return runner.Outcome{Stdout: "1\n2"}, nil
	})
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language:   interpretedLang(),
		Problem:    Problem{TimeLimitMs: 1000, TotalPoints: 1},
		Testcases:  []Testcase{{ID: 1, Input: `1\n2`, ExpectedOutput: `1\n2`}},
		SourceCode: "src",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if got := fr.specs[0].Stdin; got != "1\n2" {
		t.Errorf("stdin = %q, want decoded newline", got)
	}
	if res.Verdict != result.StatusAccepted {
		t.Errorf("verdict = %s, want Accepted", res.Verdict)
	}
}

func TestRunCodeStatusRan(t *testing.T) {
	eng, _ := newFakeEngine(t, func(spec runner.Spec) (runner.Outcome, error) {
		return runner.Outcome{Stdout: "hi", TimeMs: 7}, nil
	})
	res, err := eng.RunCode(context.Background(), RunCodeRequest{
		Language:   interpretedLang(),
		Problem:    Problem{TimeLimitMs: 1000},
		SourceCode: "src",
		Input:      "x",
	})
	if err != nil {
		t.Fatalf("RunCode: %v", err)
	}
	if res.Status != result.StatusRan {
		t.Errorf("status = %s, want Ran", res.Status)
	}
	if res.Output != "hi" || res.TimeMs != 7 {
		t.Errorf("result = %+v", res)
	}
}

func TestJudgeWorkspaceCleanedUp(t *testing.T) {
	root := t.TempDir()
	fr := &fakeRunner{handler: func(runner.Spec) (runner.Outcome, error) {
		return runner.Outcome{Stdout: "ok"}, nil
	}}
	eng := New(fr, memprobe.Unavailable(), root)
	_, err := eng.Judge(context.Background(), JudgeRequest{
		Language:   interpretedLang(),
		Problem:    Problem{TimeLimitMs: 1000},
		Testcases:  []Testcase{{ID: 1, ExpectedOutput: "ok"}},
		SourceCode: "src",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d workspace directories leaked", len(entries))
	}
}
