// Package service runs judging jobs through a bounded in-process worker
// pool and reports their progress.
package service

import (
	"context"
	"fmt"
	"time"

	"gavel/internal/judge/engine"
	"gavel/internal/judge/language"
	"gavel/internal/judge/model"
	"gavel/internal/judge/repository"
	"gavel/internal/judge/result"
	appErr "gavel/pkg/errors"
	"gavel/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultAcquireTimeout = 2 * time.Second

// Task is one judging job handed to the pool.
type Task struct {
	SubmissionID string
	UserID       int64
	LanguageKey  string
	Language     *language.Language
	Problem      engine.Problem
	Testcases    []engine.Testcase
	Groups       []engine.TestcaseGroup
	SourceCode   string
	Checker      *engine.CheckerSpec
}

// SubmissionFinalizer records a submission's final verdict and score.
type SubmissionFinalizer interface {
	Finalize(ctx context.Context, submissionID string, res result.JudgeResult) error
}

// Service owns the worker pool and the judging lifecycle.
type Service struct {
	engine         *engine.Engine
	statusRepo     *repository.StatusRepository
	resultRepo     *repository.ResultRepository
	submissions    SubmissionFinalizer
	sem            chan struct{}
	acquireTimeout time.Duration
	statusTimeout  time.Duration
}

// Config holds service dependencies and settings.
type Config struct {
	Engine         *engine.Engine
	StatusRepo     *repository.StatusRepository
	ResultRepo     *repository.ResultRepository
	Submissions    SubmissionFinalizer
	WorkerPoolSize int
	AcquireTimeout time.Duration
	StatusTimeout  time.Duration
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.StatusRepo == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	acquire := cfg.AcquireTimeout
	if acquire <= 0 {
		acquire = defaultAcquireTimeout
	}
	return &Service{
		engine:         cfg.Engine,
		statusRepo:     cfg.StatusRepo,
		resultRepo:     cfg.ResultRepo,
		submissions:    cfg.Submissions,
		sem:            make(chan struct{}, poolSize),
		acquireTimeout: acquire,
		statusTimeout:  cfg.StatusTimeout,
	}, nil
}

// Enqueue accepts a judging task. It returns once the task holds a pool slot
// and its Pending status is visible; judging then proceeds out-of-band. The
// returned channel closes when judging has finished and all persistence for
// the task is done.
func (s *Service) Enqueue(ctx context.Context, task Task) (<-chan struct{}, error) {
	if task.SubmissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	if task.Language == nil {
		return nil, appErr.New(appErr.LanguageNotSupported).WithMessage("language is not configured")
	}

	// Take the pool slot first: a rejected task must leave no trace in the
	// status store.
	if err := s.acquireSlot(ctx); err != nil {
		return nil, err
	}

	receivedAt := time.Now().Unix()
	pending := model.JudgeStatusResponse{
		SubmissionID: task.SubmissionID,
		Status:       model.StatusPending,
		Language:     task.LanguageKey,
		Progress:     model.Progress{TotalTests: len(task.Testcases)},
		Timestamps:   model.Timestamps{ReceivedAt: receivedAt},
	}
	if err := s.saveStatus(ctx, pending); err != nil {
		s.releaseSlot()
		return nil, err
	}

	done := make(chan struct{})
	judgeCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		defer s.releaseSlot()
		s.judge(judgeCtx, task, receivedAt)
	}()
	return done, nil
}

func (s *Service) judge(ctx context.Context, task Task, receivedAt int64) {
	running := model.JudgeStatusResponse{
		SubmissionID: task.SubmissionID,
		Status:       model.StatusRunning,
		Language:     task.LanguageKey,
		Progress:     model.Progress{TotalTests: len(task.Testcases)},
		Timestamps:   model.Timestamps{ReceivedAt: receivedAt},
	}
	if err := s.saveStatus(ctx, running); err != nil {
		logger.Warn(ctx, "save running status failed",
			zap.String("submission_id", task.SubmissionID), zap.Error(err))
	}

	done := 0
	req := engine.JudgeRequest{
		Language:   task.Language,
		Problem:    task.Problem,
		Testcases:  task.Testcases,
		Groups:     task.Groups,
		SourceCode: task.SourceCode,
		Checker:    task.Checker,
		OnResult: func(tr result.TestcaseResult) {
			done++
			if s.resultRepo != nil {
				if err := s.resultRepo.Insert(ctx, task.SubmissionID, tr); err != nil {
					logger.Warn(ctx, "persist testcase result failed",
						zap.String("submission_id", task.SubmissionID),
						zap.Int64("testcase_id", tr.TestcaseID), zap.Error(err))
				}
			}
			running.Progress.DoneTests = done
			if err := s.saveStatus(ctx, running); err != nil {
				logger.Warn(ctx, "update progress failed",
					zap.String("submission_id", task.SubmissionID), zap.Error(err))
			}
		},
	}

	res, err := s.engine.Judge(ctx, req)
	if err != nil {
		s.handleFailure(ctx, task, receivedAt, err)
		return
	}

	finished := model.JudgeStatusResponse{
		SubmissionID: task.SubmissionID,
		Status:       model.StatusFinished,
		Verdict:      res.Verdict,
		Score:        res.Score,
		Language:     task.LanguageKey,
		Progress:     model.Progress{TotalTests: len(task.Testcases), DoneTests: len(res.Results)},
		Timestamps:   model.Timestamps{ReceivedAt: receivedAt, FinishedAt: time.Now().Unix()},
	}
	if err := s.saveStatus(ctx, finished); err != nil {
		logger.Warn(ctx, "save finished status failed",
			zap.String("submission_id", task.SubmissionID), zap.Error(err))
	}
	s.finalize(ctx, task.SubmissionID, res)
}

// handleFailure covers infrastructure faults the engine could not classify:
// the submission ends as a System Error with score forced to 0.
func (s *Service) handleFailure(ctx context.Context, task Task, receivedAt int64, err error) {
	logger.Error(ctx, "judging failed",
		zap.String("submission_id", task.SubmissionID), zap.Error(err))
	failed := model.JudgeStatusResponse{
		SubmissionID: task.SubmissionID,
		Status:       model.StatusFailed,
		Verdict:      result.StatusSystemError,
		Score:        0,
		Language:     task.LanguageKey,
		Timestamps:   model.Timestamps{ReceivedAt: receivedAt, FinishedAt: time.Now().Unix()},
		ErrorCode:    int(appErr.GetCode(err)),
		ErrorMessage: err.Error(),
	}
	if saveErr := s.saveStatus(ctx, failed); saveErr != nil {
		logger.Warn(ctx, "save failure status failed",
			zap.String("submission_id", task.SubmissionID), zap.Error(saveErr))
	}
	s.finalize(ctx, task.SubmissionID, result.JudgeResult{
		Verdict:    result.StatusSystemError,
		Score:      0,
		Diagnostic: err.Error(),
	})
}

func (s *Service) finalize(ctx context.Context, submissionID string, res result.JudgeResult) {
	if s.submissions == nil {
		return
	}
	if err := s.submissions.Finalize(ctx, submissionID, res); err != nil {
		logger.Warn(ctx, "finalize submission failed",
			zap.String("submission_id", submissionID), zap.Error(err))
	}
}

// RunCode executes source against custom input through the same pool slot
// discipline as judging, synchronously.
func (s *Service) RunCode(ctx context.Context, req engine.RunCodeRequest) (result.RunCodeResult, error) {
	if req.Language == nil {
		return result.RunCodeResult{}, appErr.New(appErr.LanguageNotSupported).WithMessage("language is not configured")
	}
	if err := s.acquireSlot(ctx); err != nil {
		return result.RunCodeResult{}, err
	}
	defer s.releaseSlot()

	res, err := s.engine.RunCode(ctx, req)
	if err != nil {
		return result.RunCodeResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "run code failed")
	}
	return res, nil
}

// Status returns the live status snapshot for a submission.
func (s *Service) Status(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error) {
	return s.statusRepo.Get(ctx, submissionID)
}

func (s *Service) acquireSlot(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.acquireTimeout):
		return appErr.New(appErr.JudgeQueueFull).WithMessage("worker pool is full")
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
}

func (s *Service) saveStatus(ctx context.Context, status model.JudgeStatusResponse) error {
	ctxStatus := ctx
	if s.statusTimeout > 0 {
		var cancel context.CancelFunc
		ctxStatus, cancel = context.WithTimeout(ctx, s.statusTimeout)
		defer cancel()
	}
	return s.statusRepo.Save(ctxStatus, status)
}
