package repository

import (
	"context"

	"gavel/internal/common/db"
	"gavel/internal/judge/result"
	appErr "gavel/pkg/errors"
)

// ResultRepository writes per-testcase results as they are produced and
// reads them back for submission detail views.
type ResultRepository struct {
	db db.Database
}

// NewResultRepository creates a new repository.
func NewResultRepository(database db.Database) *ResultRepository {
	return &ResultRepository{db: database}
}

// Insert stores one testcase result. Called incrementally while judging runs.
func (r *ResultRepository) Insert(ctx context.Context, submissionID string, tr result.TestcaseResult) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	query := `INSERT INTO submission_results
		(submission_id, testcase_id, name, test_order, group_id, status, time_ms, memory_kb, output, diagnostic)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.Exec(ctx, query,
		submissionID, tr.TestcaseID, tr.Name, tr.Order, tr.GroupID,
		string(tr.Status), tr.TimeMs, tr.MemoryKB, tr.Output, tr.Diagnostic)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "insert testcase result failed")
	}
	return nil
}

// ListBySubmission returns all stored results for a submission in test order.
func (r *ResultRepository) ListBySubmission(ctx context.Context, submissionID string) ([]result.TestcaseResult, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	query := `SELECT testcase_id, name, test_order, group_id, status, time_ms, memory_kb, output, diagnostic
		FROM submission_results WHERE submission_id = ? ORDER BY test_order ASC`
	rows, err := r.db.Query(ctx, query, submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list testcase results failed")
	}
	defer rows.Close()

	var results []result.TestcaseResult
	for rows.Next() {
		var tr result.TestcaseResult
		var status string
		if err := rows.Scan(&tr.TestcaseID, &tr.Name, &tr.Order, &tr.GroupID,
			&status, &tr.TimeMs, &tr.MemoryKB, &tr.Output, &tr.Diagnostic); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan testcase result failed")
		}
		tr.Status = result.Status(status)
		results = append(results, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate testcase results failed")
	}
	return results, nil
}
