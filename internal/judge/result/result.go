// Package result defines judge statuses and execution result types.
package result

// Status is the canonical per-testcase classification.
type Status string

const (
	StatusAccepted     Status = "Accepted"
	StatusWrongAnswer  Status = "Wrong Answer"
	StatusTimeLimit    Status = "Time Limit Exceeded"
	StatusMemoryLimit  Status = "Memory Limit Exceeded"
	StatusRuntimeError Status = "Runtime Error"
	StatusSystemError  Status = "System Error"
	StatusCompileError Status = "Compilation Error"

	// StatusRan replaces the internal OK state for ad hoc runs that
	// bypass verification.
	StatusRan Status = "Ran"
)

// TestcaseResult is one testcase's judged outcome.
type TestcaseResult struct {
	TestcaseID int64  `json:"testcase_id"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
	GroupID    *int64 `json:"group_id,omitempty"`
	Status     Status `json:"status"`
	TimeMs     int64  `json:"time_ms"`
	MemoryKB   *int64 `json:"memory_kb,omitempty"`
	Output     string `json:"output,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// JudgeResult is the aggregate verdict for a submission.
type JudgeResult struct {
	Verdict       Status           `json:"verdict"`
	CompileOutput string           `json:"compile_output,omitempty"`
	Diagnostic    string           `json:"diagnostic,omitempty"`
	Results       []TestcaseResult `json:"results"`
	Score         int64            `json:"score"`
	MaxTimeMs     int64            `json:"max_time_ms"`
	MaxMemoryKB   *int64           `json:"max_memory_kb,omitempty"`
}

// RunCodeResult is the outcome of an ad hoc run against custom input.
type RunCodeResult struct {
	Status        Status `json:"status"`
	CompileOutput string `json:"compile_output,omitempty"`
	TimeMs        int64  `json:"time_ms"`
	MemoryKB      *int64 `json:"memory_kb,omitempty"`
	Output        string `json:"output"`
	Stderr        string `json:"stderr,omitempty"`
}
