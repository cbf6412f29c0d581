// Package service handles submission intake: validation, throttling,
// deduplication, source archival and dispatch into the judging pool.
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"gavel/internal/common/cache"
	"gavel/internal/common/storage"
	"gavel/internal/judge/engine"
	"gavel/internal/judge/language"
	"gavel/internal/judge/model"
	judgeService "gavel/internal/judge/service"
	problemRepo "gavel/internal/problem/repository"
	"gavel/internal/submit/repository"
	appErr "gavel/pkg/errors"
	"gavel/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix = "submit:idempotency:"
	rateUserKeyPrefix    = "submit:rate:user:"
	rateIPKeyPrefix      = "submit:rate:ip:"
	defaultSourcePrefix  = "submissions"
	processingMarker     = "processing"
	defaultMaxCodeBytes  = 256 * 1024
)

// RateLimitConfig holds throttling configuration.
type RateLimitConfig struct {
	UserMax int
	IPMax   int
	Window  time.Duration
}

// Config holds submit service dependencies and settings.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	ProblemRepo    problemRepo.ProblemRepository
	Judge          *judgeService.Service
	Languages      *language.Registry
	Storage        storage.ObjectStorage
	Cache          cache.Cache

	SourceBucket    string
	SourceKeyPrefix string
	MaxCodeBytes    int
	IdempotencyTTL  time.Duration
	RateLimit       RateLimitConfig
}

// SubmitService handles submission intake and dispatch.
type SubmitService struct {
	submissionRepo  repository.SubmissionRepository
	problemRepo     problemRepo.ProblemRepository
	judge           *judgeService.Service
	languages       *language.Registry
	storage         storage.ObjectStorage
	cache           cache.Cache
	sourceBucket    string
	sourceKeyPrefix string
	maxCodeBytes    int
	idempotencyTTL  time.Duration
	rateLimit       RateLimitConfig
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	ProblemID      int64
	UserID         int64
	LanguageKey    string
	SourceCode     string
	IdempotencyKey string
	ClientIP       string
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.ProblemRepo == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge service is required")
	}
	if cfg.Languages == nil {
		return nil, fmt.Errorf("language registry is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.SourceBucket == "" {
		return nil, fmt.Errorf("source bucket is required")
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	return &SubmitService{
		submissionRepo:  cfg.SubmissionRepo,
		problemRepo:     cfg.ProblemRepo,
		judge:           cfg.Judge,
		languages:       cfg.Languages,
		storage:         cfg.Storage,
		cache:           cfg.Cache,
		sourceBucket:    cfg.SourceBucket,
		sourceKeyPrefix: cfg.SourceKeyPrefix,
		maxCodeBytes:    cfg.MaxCodeBytes,
		idempotencyTTL:  cfg.IdempotencyTTL,
		rateLimit:       cfg.RateLimit,
	}, nil
}

// Submit validates, records and dispatches a submission. It returns once the
// task holds a judging slot; the returned status is the initial Pending
// snapshot and judging continues out-of-band.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (string, model.JudgeStatusResponse, error) {
	lang, err := s.validateInput(input)
	if err != nil {
		return "", model.JudgeStatusResponse{}, err
	}
	if err := s.checkRateLimit(ctx, input.UserID, input.ClientIP); err != nil {
		return "", model.JudgeStatusResponse{}, err
	}

	acquired, existingID, err := s.acquireIdempotency(ctx, input.IdempotencyKey)
	if err != nil {
		return "", model.JudgeStatusResponse{}, err
	}
	if !acquired && existingID != "" {
		status, statusErr := s.judge.Status(ctx, existingID)
		if statusErr != nil {
			return "", model.JudgeStatusResponse{}, statusErr
		}
		return existingID, status, nil
	}

	prob, testcases, groups, checker, err := s.loadProblem(ctx, input.ProblemID)
	if err != nil {
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return "", model.JudgeStatusResponse{}, err
	}

	submissionID := uuid.NewString()
	sourceKey := s.buildSourceKey(submissionID)
	if err := s.uploadSource(ctx, sourceKey, input.SourceCode); err != nil {
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return "", model.JudgeStatusResponse{}, err
	}

	submission := &repository.Submission{
		SubmissionID: submissionID,
		ProblemID:    input.ProblemID,
		UserID:       input.UserID,
		LanguageKey:  lang.Key,
		SourceKey:    sourceKey,
		SourceHash:   hashSource(input.SourceCode),
	}
	if err := s.submissionRepo.Create(ctx, nil, submission); err != nil {
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return "", model.JudgeStatusResponse{}, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}

	task := judgeService.Task{
		SubmissionID: submissionID,
		UserID:       input.UserID,
		LanguageKey:  lang.Key,
		Language:     &lang,
		Problem:      prob,
		Testcases:    testcases,
		Groups:       groups,
		SourceCode:   input.SourceCode,
		Checker:      checker,
	}
	if _, err := s.judge.Enqueue(ctx, task); err != nil {
		s.discardSubmission(ctx, submissionID, sourceKey)
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return "", model.JudgeStatusResponse{}, err
	}

	s.finalizeIdempotency(ctx, input.IdempotencyKey, submissionID, acquired)
	pending := model.JudgeStatusResponse{
		SubmissionID: submissionID,
		Status:       model.StatusPending,
		Language:     lang.Key,
		Progress:     model.Progress{TotalTests: len(testcases)},
		Timestamps:   model.Timestamps{ReceivedAt: time.Now().Unix()},
	}
	return submissionID, pending, nil
}

// GetSubmission returns a stored submission row.
func (s *SubmitService) GetSubmission(ctx context.Context, submissionID string) (*repository.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	sub, err := s.submissionRepo.GetByID(ctx, nil, submissionID)
	if err != nil {
		if err == repository.ErrSubmissionNotFound {
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessage("submission not found")
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return sub, nil
}

func (s *SubmitService) validateInput(input SubmitInput) (language.Language, error) {
	if input.ProblemID <= 0 {
		return language.Language{}, appErr.ValidationError("problem_id", "required")
	}
	if input.UserID <= 0 {
		return language.Language{}, appErr.ValidationError("user_id", "required")
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return language.Language{}, appErr.ValidationError("source_code", "required")
	}
	if len(input.SourceCode) > s.maxCodeBytes {
		return language.Language{}, appErr.New(appErr.CodeTooLarge).WithMessage("source code too large")
	}
	lang, err := s.languages.Get(strings.TrimSpace(input.LanguageKey))
	if err != nil {
		return language.Language{}, appErr.New(appErr.LanguageNotSupported).
			WithMessagef("language %q is not supported", input.LanguageKey)
	}
	return lang, nil
}

// loadProblem reads the problem row, testcases, groups and the checker spec
// and converts them to the engine's shapes.
func (s *SubmitService) loadProblem(ctx context.Context, problemID int64) (engine.Problem, []engine.Testcase, []engine.TestcaseGroup, *engine.CheckerSpec, error) {
	row, err := s.problemRepo.GetByID(ctx, problemID)
	if err != nil {
		return engine.Problem{}, nil, nil, nil, err
	}
	tcRows, err := s.problemRepo.ListTestcases(ctx, problemID)
	if err != nil {
		return engine.Problem{}, nil, nil, nil, err
	}
	if len(tcRows) == 0 {
		return engine.Problem{}, nil, nil, nil, appErr.New(appErr.TestcaseNotFound).
			WithMessagef("problem %d has no testcases", problemID)
	}
	groupRows, err := s.problemRepo.ListGroups(ctx, problemID)
	if err != nil {
		return engine.Problem{}, nil, nil, nil, err
	}

	prob := engine.Problem{
		ID:            row.ID,
		TimeLimitMs:   row.TimeLimitMs,
		MemoryLimitKB: row.MemoryLimitKB,
		JudgeType:     row.JudgeType,
		TotalPoints:   row.TotalPoints,
	}
	testcases := make([]engine.Testcase, 0, len(tcRows))
	for _, tc := range tcRows {
		testcases = append(testcases, engine.Testcase{
			ID:             tc.ID,
			Name:           tc.Name,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			GroupID:        tc.GroupID,
		})
	}
	groups := make([]engine.TestcaseGroup, 0, len(groupRows))
	for _, g := range groupRows {
		groups = append(groups, engine.TestcaseGroup{ID: g.ID, Name: g.Name, Points: g.Points})
	}

	var checker *engine.CheckerSpec
	if row.JudgeType == engine.JudgeTypeCustom {
		checkerLang, err := s.languages.Get(row.CheckerLanguageKey)
		if err != nil {
			return engine.Problem{}, nil, nil, nil, appErr.New(appErr.ProblemNotFound).
				WithMessagef("checker language %q is not configured", row.CheckerLanguageKey)
		}
		if strings.TrimSpace(row.CheckerSource) == "" {
			return engine.Problem{}, nil, nil, nil, appErr.New(appErr.ProblemNotFound).
				WithMessagef("problem %d has no checker source", problemID)
		}
		checker = &engine.CheckerSpec{Language: &checkerLang, Source: row.CheckerSource}
	}
	return prob, testcases, groups, checker, nil
}

func (s *SubmitService) acquireIdempotency(ctx context.Context, key string) (bool, string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return true, "", nil
	}
	cacheKey := idempotencyKeyPrefix + key

	existing, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}

	ttl := s.idempotencyTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ok, err := s.cache.SetNX(ctx, cacheKey, processingMarker, ttl)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, "", nil
	}
	existing, err = s.cache.Get(ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	return false, "", appErr.New(appErr.DuplicateSubmission).WithMessage("request is processing")
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, key, submissionID string, acquired bool) {
	if !acquired || strings.TrimSpace(key) == "" {
		return
	}
	ttl := s.idempotencyTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if err := s.cache.Set(ctx, idempotencyKeyPrefix+strings.TrimSpace(key), submissionID, ttl); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, key string, acquired bool) {
	if !acquired || strings.TrimSpace(key) == "" {
		return
	}
	if err := s.cache.Del(ctx, idempotencyKeyPrefix+strings.TrimSpace(key)); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

// discardSubmission backs out the row and the archived source of a submission
// that was rejected by the judging pool, so nothing dangles with an empty
// verdict.
func (s *SubmitService) discardSubmission(ctx context.Context, submissionID, sourceKey string) {
	if err := s.submissionRepo.Delete(ctx, nil, submissionID); err != nil {
		logger.Warn(ctx, "discard rejected submission failed",
			zap.String("submission_id", submissionID), zap.Error(err))
	}
	if err := s.storage.RemoveObject(ctx, s.sourceBucket, sourceKey); err != nil {
		logger.Warn(ctx, "remove rejected submission source failed",
			zap.String("source_key", sourceKey), zap.Error(err))
	}
}

func (s *SubmitService) checkRateLimit(ctx context.Context, userID int64, clientIP string) error {
	if s.rateLimit.Window <= 0 || (s.rateLimit.UserMax <= 0 && s.rateLimit.IPMax <= 0) {
		return nil
	}
	if s.rateLimit.UserMax > 0 && userID > 0 {
		if err := s.checkRateCounter(ctx, rateUserKeyPrefix+fmt.Sprintf("%d", userID), s.rateLimit.UserMax); err != nil {
			return err
		}
	}
	if s.rateLimit.IPMax > 0 && clientIP != "" {
		if err := s.checkRateCounter(ctx, rateIPKeyPrefix+clientIP, s.rateLimit.IPMax); err != nil {
			return err
		}
	}
	return nil
}

func (s *SubmitService) checkRateCounter(ctx context.Context, key string, max int) error {
	count, err := s.cache.Incr(ctx, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if count == 1 {
		_ = s.cache.Expire(ctx, key, s.rateLimit.Window)
	}
	if int(count) > max {
		return appErr.New(appErr.SubmitTooFrequently).WithMessage("submit too frequently")
	}
	return nil
}

// uploadSource archives the source zstd-compressed in object storage.
func (s *SubmitService) uploadSource(ctx context.Context, objectKey, source string) error {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "init source compressor failed")
	}
	if _, err := io.Copy(enc, strings.NewReader(source)); err != nil {
		enc.Close()
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "compress source failed")
	}
	if err := enc.Close(); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "compress source failed")
	}
	if err := s.storage.PutObject(ctx, s.sourceBucket, objectKey,
		bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/zstd"); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "upload source failed")
	}
	return nil
}

// FetchSource downloads and decompresses an archived source.
func (s *SubmitService) FetchSource(ctx context.Context, sourceKey string) (string, error) {
	reader, err := s.storage.GetObject(ctx, s.sourceBucket, sourceKey)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "download source failed")
	}
	defer reader.Close()
	dec, err := zstd.NewReader(reader)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "init source decompressor failed")
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "read source failed")
	}
	return string(data), nil
}

func (s *SubmitService) buildSourceKey(submissionID string) string {
	return fmt.Sprintf("%s/%s/source.code.zst", s.sourceKeyPrefix, submissionID)
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
