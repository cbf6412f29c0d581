// Package model holds the judge service's wire and persistence shapes.
package model

import "gavel/internal/judge/result"

// Lifecycle states of a submission while it moves through the judge.
const (
	StatusPending  = "Pending"
	StatusRunning  = "Running"
	StatusFinished = "Finished"
	StatusFailed   = "Failed"
)

// Progress counts judged testcases for live reporting.
type Progress struct {
	TotalTests int `json:"total_tests"`
	DoneTests  int `json:"done_tests"`
}

// Timestamps are unix seconds; zero means "not yet".
type Timestamps struct {
	ReceivedAt int64 `json:"received_at,omitempty"`
	FinishedAt int64 `json:"finished_at,omitempty"`
}

// JudgeStatusResponse is the live status document stored in cache and
// returned to pollers and the websocket stream.
type JudgeStatusResponse struct {
	SubmissionID string        `json:"submission_id"`
	Status       string        `json:"status"`
	Verdict      result.Status `json:"verdict,omitempty"`
	Score        int64         `json:"score"`
	Language     string        `json:"language,omitempty"`
	Progress     Progress      `json:"progress"`
	Timestamps   Timestamps    `json:"timestamps"`
	ErrorCode    int           `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Terminal reports whether the status will not change again.
func (s JudgeStatusResponse) Terminal() bool {
	return s.Status == StatusFinished || s.Status == StatusFailed
}
