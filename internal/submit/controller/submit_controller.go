// Package controller exposes submission intake and detail endpoints.
package controller

import (
	"strings"

	"gavel/internal/judge/repository"
	"gavel/internal/judge/result"
	"gavel/internal/submit/service"
	"gavel/pkg/utils/contextkey"
	"gavel/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService *service.SubmitService
	resultRepo    *repository.ResultRepository
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService *service.SubmitService, resultRepo *repository.ResultRepository) *SubmitController {
	return &SubmitController{submitService: submitService, resultRepo: resultRepo}
}

// SubmitRequest is the submission intake payload.
type SubmitRequest struct {
	ProblemID  int64  `json:"problem_id" binding:"required"`
	Language   string `json:"language" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
	ReceivedAt   int64  `json:"received_at"`
}

// Create handles submission requests. The submission is acknowledged once
// it holds a judging slot; results arrive asynchronously.
func (h *SubmitController) Create(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	userID, _ := c.Request.Context().Value(contextkey.UserID).(int64)
	idempotencyKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	submissionID, status, err := h.submitService.Submit(c.Request.Context(), service.SubmitInput{
		ProblemID:      req.ProblemID,
		UserID:         userID,
		LanguageKey:    req.Language,
		SourceCode:     req.SourceCode,
		IdempotencyKey: idempotencyKey,
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Accepted(c, SubmitResponse{
		SubmissionID: submissionID,
		Status:       status.Status,
		ReceivedAt:   status.Timestamps.ReceivedAt,
	})
}

// SubmissionDetail is the stored submission with its per-testcase results.
type SubmissionDetail struct {
	SubmissionID  string                  `json:"submission_id"`
	ProblemID     int64                   `json:"problem_id"`
	Language      string                  `json:"language"`
	Verdict       string                  `json:"verdict"`
	Score         int64                   `json:"score"`
	CompileOutput string                  `json:"compile_output,omitempty"`
	MaxTimeMs     int64                   `json:"max_time_ms"`
	MaxMemoryKB   *int64                  `json:"max_memory_kb,omitempty"`
	Results       []result.TestcaseResult `json:"results"`
}

// Get returns one submission with its testcase results.
func (h *SubmitController) Get(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	sub, err := h.submitService.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	results, err := h.resultRepo.ListBySubmission(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SubmissionDetail{
		SubmissionID:  sub.SubmissionID,
		ProblemID:     sub.ProblemID,
		Language:      sub.LanguageKey,
		Verdict:       sub.Verdict,
		Score:         sub.Score,
		CompileOutput: sub.CompileOutput,
		MaxTimeMs:     sub.MaxTimeMs,
		MaxMemoryKB:   sub.MaxMemoryKB,
		Results:       results,
	})
}
