package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gavel/internal/common/cache"
	"gavel/internal/judge/engine"
	"gavel/internal/judge/language"
	"gavel/internal/judge/memprobe"
	"gavel/internal/judge/model"
	"gavel/internal/judge/repository"
	"gavel/internal/judge/result"
	"gavel/internal/judge/runner"
	appErr "gavel/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// blockingRunner echoes stdin; it can be told to hold every run until
// released, to keep pool slots busy.
type blockingRunner struct {
	mu      sync.Mutex
	block   chan struct{}
	nowErr  error
	outcome *runner.Outcome
}

func (b *blockingRunner) Run(ctx context.Context, spec runner.Spec) (runner.Outcome, error) {
	b.mu.Lock()
	block := b.block
	err := b.nowErr
	outcome := b.outcome
	b.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return runner.Outcome{}, ctx.Err()
		}
	}
	if err != nil {
		return runner.Outcome{}, err
	}
	if outcome != nil {
		return *outcome, nil
	}
	return runner.Outcome{Stdout: spec.Stdin}, nil
}

type recordingFinalizer struct {
	mu   sync.Mutex
	seen map[string]result.JudgeResult
}

func (f *recordingFinalizer) Finalize(_ context.Context, submissionID string, res result.JudgeResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]result.JudgeResult)
	}
	f.seen[submissionID] = res
	return nil
}

func (f *recordingFinalizer) get(id string) (result.JudgeResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.seen[id]
	return res, ok
}

func testStatusRepo(t *testing.T) *repository.StatusRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return repository.NewStatusRepository(c, time.Hour)
}

func echoLang() *language.Language {
	return &language.Language{
		Key:                "echo",
		SourceExt:          ".txt",
		RunCommand:         language.Template{"prog"},
		Interpreted:        true,
		DefaultTimeLimitMs: 1000,
	}
}

func newTestService(t *testing.T, run runner.Runner, fin SubmissionFinalizer, poolSize int, acquire time.Duration) *Service {
	t.Helper()
	eng := engine.New(run, memprobe.Unavailable(), t.TempDir())
	svc, err := NewService(Config{
		Engine:         eng,
		StatusRepo:     testStatusRepo(t),
		Submissions:    fin,
		WorkerPoolSize: poolSize,
		AcquireTimeout: acquire,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func echoTask(id string) Task {
	return Task{
		SubmissionID: id,
		LanguageKey:  "echo",
		Language:     echoLang(),
		Problem:      engine.Problem{TimeLimitMs: 1000, TotalPoints: 100},
		Testcases: []engine.Testcase{
			{ID: 1, Input: "a", ExpectedOutput: "a"},
			{ID: 2, Input: "b", ExpectedOutput: "b"},
		},
		SourceCode: "src",
	}
}

func TestEnqueueJudgesAndFinalizes(t *testing.T) {
	fin := &recordingFinalizer{}
	svc := newTestService(t, &blockingRunner{}, fin, 2, time.Second)

	done, err := svc.Enqueue(context.Background(), echoTask("sub-1"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("judging did not finish")
	}

	status, err := svc.Status(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != model.StatusFinished {
		t.Errorf("status = %s, want Finished", status.Status)
	}
	if status.Verdict != result.StatusAccepted || status.Score != 100 {
		t.Errorf("verdict = %s, score = %d", status.Verdict, status.Score)
	}
	if status.Progress.DoneTests != 2 {
		t.Errorf("done tests = %d, want 2", status.Progress.DoneTests)
	}

	res, ok := fin.get("sub-1")
	if !ok {
		t.Fatal("submission was not finalized")
	}
	if res.Verdict != result.StatusAccepted || res.Score != 100 {
		t.Errorf("finalized = %+v", res)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	run := &blockingRunner{block: make(chan struct{})}
	svc := newTestService(t, run, &recordingFinalizer{}, 1, 50*time.Millisecond)

	done, err := svc.Enqueue(context.Background(), echoTask("sub-slow"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	_, err = svc.Enqueue(context.Background(), echoTask("sub-rejected"))
	if !appErr.Is(err, appErr.JudgeQueueFull) {
		t.Fatalf("err = %v, want JudgeQueueFull", err)
	}
	// A rejected task must not leave a Pending status behind.
	if _, err := svc.Status(context.Background(), "sub-rejected"); err == nil {
		t.Error("rejected submission has a stored status")
	}

	close(run.block)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first task never finished")
	}
}

func TestEnqueueInfrastructureFailureEndsFailed(t *testing.T) {
	run := &blockingRunner{nowErr: context.DeadlineExceeded}
	fin := &recordingFinalizer{}
	svc := newTestService(t, run, fin, 1, time.Second)

	done, err := svc.Enqueue(context.Background(), echoTask("sub-broken"))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-done

	status, err := svc.Status(context.Background(), "sub-broken")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != model.StatusFailed {
		t.Errorf("status = %s, want Failed", status.Status)
	}
	if status.Verdict != result.StatusSystemError {
		t.Errorf("verdict = %s, want System Error", status.Verdict)
	}

	res, ok := fin.get("sub-broken")
	if !ok {
		t.Fatal("failed submission was not finalized")
	}
	if res.Verdict != result.StatusSystemError || res.Score != 0 {
		t.Errorf("finalized = %+v, want System Error with score 0", res)
	}
}

func TestRunCodeThroughPool(t *testing.T) {
	svc := newTestService(t, &blockingRunner{}, nil, 1, time.Second)
	res, err := svc.RunCode(context.Background(), engine.RunCodeRequest{
		Language:   echoLang(),
		Problem:    engine.Problem{TimeLimitMs: 1000},
		SourceCode: "src",
		Input:      "ping",
	})
	if err != nil {
		t.Fatalf("RunCode: %v", err)
	}
	if res.Status != result.StatusRan || res.Output != "ping" {
		t.Errorf("result = %+v", res)
	}
}

func TestEnqueueRejectsMissingLanguage(t *testing.T) {
	svc := newTestService(t, &blockingRunner{}, nil, 1, time.Second)
	task := echoTask("sub-x")
	task.Language = nil
	if _, err := svc.Enqueue(context.Background(), task); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("err = %v, want LanguageNotSupported", err)
	}
}
