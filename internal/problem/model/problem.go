// Package model defines the problem schema rows the judge consumes.
package model

// Problem is one row of the problems table.
type Problem struct {
	ID                 int64  `json:"id"`
	Title              string `json:"title"`
	TimeLimitMs        int64  `json:"time_limit_ms"`
	MemoryLimitKB      int64  `json:"memory_limit_kb"`
	JudgeType          string `json:"judge_type"`
	CheckerLanguageKey string `json:"checker_language_key,omitempty"`
	CheckerSource      string `json:"checker_source,omitempty"`
	TotalPoints        int64  `json:"total_points"`
}

// Testcase is one row of the testcases table, ordered by OrderKey.
type Testcase struct {
	ID             int64  `json:"id"`
	ProblemID      int64  `json:"problem_id"`
	Name           string `json:"name"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	GroupID        *int64 `json:"group_id,omitempty"`
	OrderKey       int    `json:"order_key"`
}

// TestcaseGroup is one row of the testcase_groups table.
type TestcaseGroup struct {
	ID        int64  `json:"id"`
	ProblemID int64  `json:"problem_id"`
	Name      string `json:"name"`
	Points    int64  `json:"points"`
}

// Language is one row of the languages table. Command columns hold
// JSON-encoded token arrays.
type Language struct {
	Key                  string `json:"key"`
	Name                 string `json:"name"`
	SourceExt            string `json:"source_ext"`
	CompileCommand       string `json:"compile_command,omitempty"`
	RunCommand           string `json:"run_command"`
	Interpreted          bool   `json:"interpreted"`
	DefaultTimeLimitMs   int64  `json:"default_time_limit_ms"`
	DefaultMemoryLimitKB int64  `json:"default_memory_limit_kb"`
}
