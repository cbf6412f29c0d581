package engine

import (
	"gavel/internal/judge/language"
	"gavel/internal/judge/result"
)

// Judge types accepted on a problem.
const (
	JudgeTypeDefault = "default"
	JudgeTypeCustom  = "custom"
)

// Problem carries the judging parameters for one run. It is immutable for
// the duration of the run.
type Problem struct {
	ID            int64
	TimeLimitMs   int64
	MemoryLimitKB int64
	JudgeType     string
	TotalPoints   int64
}

// TestcaseGroup awards its points only when every member testcase passes.
type TestcaseGroup struct {
	ID     int64
	Name   string
	Points int64
}

// Testcase is one input/expected-output pair, in stored order.
type Testcase struct {
	ID             int64
	Name           string
	Input          string
	ExpectedOutput string
	GroupID        *int64
}

// CheckerSpec describes a problem-supplied checker program.
type CheckerSpec struct {
	Language *language.Language
	Source   string
}

// JudgeRequest is a full judging run over a problem's testcase suite.
// Checker must be set iff the problem's judge type is custom. OnResult, when
// non-nil, is invoked after each testcase completes, in order, before the
// next testcase starts.
type JudgeRequest struct {
	Language   *language.Language
	Problem    Problem
	Testcases  []Testcase
	Groups     []TestcaseGroup
	SourceCode string
	Checker    *CheckerSpec
	OnResult   func(result.TestcaseResult)
}

// RunCodeRequest is an ad hoc single execution against caller-supplied
// input, with no verification.
type RunCodeRequest struct {
	Language   *language.Language
	Problem    Problem
	SourceCode string
	Input      string
}
