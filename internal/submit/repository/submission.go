// Package repository persists submission rows and their final verdicts.
package repository

import (
	"context"
	"errors"
	"time"

	"gavel/internal/common/db"
	"gavel/internal/judge/result"
)

var ErrSubmissionNotFound = errors.New("submission not found")

// Submission is one row of the submissions table.
type Submission struct {
	SubmissionID  string
	ProblemID     int64
	UserID        int64
	LanguageKey   string
	SourceKey     string
	SourceHash    string
	Verdict       string
	Score         int64
	CompileOutput string
	MaxTimeMs     int64
	MaxMemoryKB   *int64
	CreatedAt     time.Time
	FinishedAt    *time.Time
}

// SubmissionRepository defines submission persistence.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error)
	Finalize(ctx context.Context, submissionID string, res result.JudgeResult) error
	Delete(ctx context.Context, tx db.Transaction, submissionID string) error
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

// Create inserts a submission record.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.SubmissionID == "" {
		return errors.New("submissionID is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.UserID <= 0 {
		return errors.New("userID is required")
	}
	if submission.LanguageKey == "" {
		return errors.New("languageKey is required")
	}
	if submission.SourceKey == "" {
		return errors.New("sourceKey is required")
	}

	query := `
		INSERT INTO submissions
		(submission_id, problem_id, user_id, language_key, source_key, source_hash, verdict, score)
		VALUES (?, ?, ?, ?, ?, ?, '', 0)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.SubmissionID,
		submission.ProblemID,
		submission.UserID,
		submission.LanguageKey,
		submission.SourceKey,
		submission.SourceHash,
	)
	return err
}

// Delete removes a submission record. Used to back out a submission that
// never reached the judging pool.
func (r *MySQLSubmissionRepository) Delete(ctx context.Context, tx db.Transaction, submissionID string) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	_, err := db.GetQuerier(r.db, tx).Exec(ctx,
		`DELETE FROM submissions WHERE submission_id = ?`, submissionID)
	return err
}

// GetByID loads one submission.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	query := `
		SELECT submission_id, problem_id, user_id, language_key, source_key, source_hash,
		       verdict, score, compile_output, max_time_ms, max_memory_kb, created_at, finished_at
		FROM submissions WHERE submission_id = ?
	`
	var sub Submission
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID).Scan(
		&sub.SubmissionID, &sub.ProblemID, &sub.UserID, &sub.LanguageKey,
		&sub.SourceKey, &sub.SourceHash, &sub.Verdict, &sub.Score,
		&sub.CompileOutput, &sub.MaxTimeMs, &sub.MaxMemoryKB,
		&sub.CreatedAt, &sub.FinishedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// Finalize records the aggregate verdict once judging completes. Satisfies
// the judge service's SubmissionFinalizer.
func (r *MySQLSubmissionRepository) Finalize(ctx context.Context, submissionID string, res result.JudgeResult) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	query := `
		UPDATE submissions
		SET verdict = ?, score = ?, compile_output = ?, max_time_ms = ?, max_memory_kb = ?, finished_at = NOW()
		WHERE submission_id = ?
	`
	out, err := r.db.Exec(ctx, query,
		string(res.Verdict), res.Score, res.CompileOutput,
		res.MaxTimeMs, res.MaxMemoryKB, submissionID)
	if err != nil {
		return err
	}
	affected, err := out.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}
