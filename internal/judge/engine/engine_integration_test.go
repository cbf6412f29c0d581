package engine

import (
	"context"
	"os"
	"testing"

	"gavel/internal/judge/language"
	"gavel/internal/judge/memprobe"
	"gavel/internal/judge/result"
	"gavel/internal/judge/runner"
)

func shellLang(t *testing.T) *language.Language {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	return &language.Language{
		Key:                "sh",
		Name:               "POSIX shell",
		SourceExt:          ".sh",
		RunCommand:         language.Template{"/bin/sh", "{src}"},
		Interpreted:        true,
		DefaultTimeLimitMs: 5000,
	}
}

func newShellEngine(t *testing.T) *Engine {
	t.Helper()
	return New(runner.New(), memprobe.Detect(), t.TempDir())
}

func TestJudgeEchoProgramEndToEnd(t *testing.T) {
	lang := shellLang(t)
	eng := newShellEngine(t)
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language: lang,
		Problem:  Problem{TimeLimitMs: 5000, TotalPoints: 100},
		Testcases: []Testcase{
			{ID: 1, Input: "hello\n", ExpectedOutput: "hello"},
			{ID: 2, Input: "world\n", ExpectedOutput: "world"},
		},
		SourceCode: "cat\n",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Verdict != result.StatusAccepted {
		t.Fatalf("verdict = %s, results = %+v", res.Verdict, res.Results)
	}
	if res.Score != 100 {
		t.Errorf("score = %d, want 100", res.Score)
	}
}

func TestJudgeSleepyProgramIsTimeLimitNotWrongAnswer(t *testing.T) {
	lang := shellLang(t)
	eng := newShellEngine(t)
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language:   lang,
		Problem:    Problem{TimeLimitMs: 200, TotalPoints: 10},
		Testcases:  []Testcase{{ID: 1, ExpectedOutput: ""}},
		SourceCode: "sleep 5\n",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Verdict != result.StatusTimeLimit {
		t.Errorf("verdict = %s, want Time Limit Exceeded", res.Verdict)
	}
}

func TestJudgeNonZeroExitAfterCorrectOutput(t *testing.T) {
	lang := shellLang(t)
	eng := newShellEngine(t)
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language:   lang,
		Problem:    Problem{TimeLimitMs: 5000, TotalPoints: 10},
		Testcases:  []Testcase{{ID: 1, ExpectedOutput: "42"}},
		SourceCode: "echo 42\nexit 1\n",
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Verdict != result.StatusRuntimeError {
		t.Errorf("verdict = %s, want Runtime Error", res.Verdict)
	}
}

func TestJudgeCustomShellChecker(t *testing.T) {
	lang := shellLang(t)
	eng := newShellEngine(t)
	// The checker accepts when the payload mentions the candidate output "ok".
	checkerSrc := "if grep -q '\"output\":\"ok' -; then echo Accepted; else echo 'Wrong Answer'; fi\n"
	res, err := eng.Judge(context.Background(), JudgeRequest{
		Language:   lang,
		Problem:    Problem{TimeLimitMs: 5000, JudgeType: JudgeTypeCustom, TotalPoints: 100},
		Testcases:  []Testcase{{ID: 1, Input: "anything\n"}},
		SourceCode: "echo ok\n",
		Checker:    &CheckerSpec{Language: lang, Source: checkerSrc},
	})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if res.Verdict != result.StatusAccepted {
		t.Fatalf("verdict = %s, results = %+v", res.Verdict, res.Results)
	}
}

func TestRunCodeEndToEnd(t *testing.T) {
	lang := shellLang(t)
	eng := newShellEngine(t)
	res, err := eng.RunCode(context.Background(), RunCodeRequest{
		Language:   lang,
		Problem:    Problem{TimeLimitMs: 5000},
		SourceCode: "tr a-z A-Z\n",
		Input:      "loud\n",
	})
	if err != nil {
		t.Fatalf("RunCode: %v", err)
	}
	if res.Status != result.StatusRan {
		t.Fatalf("status = %s, stderr = %q", res.Status, res.Stderr)
	}
	if res.Output != "LOUD\n" {
		t.Errorf("output = %q", res.Output)
	}
}
