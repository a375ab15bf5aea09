package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/common"
	"github.com/ternarybob/pagesmith/internal/interfaces"
	"github.com/ternarybob/pagesmith/internal/models"
	"github.com/ternarybob/pagesmith/internal/services/llm"
	"github.com/ternarybob/pagesmith/internal/services/preview"
	"github.com/ternarybob/pagesmith/internal/services/telegram"
	storage "github.com/ternarybob/pagesmith/internal/storage/badger"
)

// fakeJobs is an in-memory JobStorage with the same status guards as the
// durable implementation
type fakeJobs struct {
	mu             sync.Mutex
	jobs           map[string]*models.Job
	attempts       map[string]*models.Attempt
	markFailed     []string
	closeErrors    []string
	panicOnSuccess bool
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		jobs:     make(map[string]*models.Job),
		attempts: make(map[string]*models.Attempt),
	}
}

func (f *fakeJobs) CreateJob(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobs) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobs) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	return nil, nil
}

func (f *fakeJobs) MarkFailed(ctx context.Context, jobID string, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}
	if job.IsTerminal() {
		return storage.ErrConflict
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = errorMsg
	f.markFailed = append(f.markFailed, jobID)
	return nil
}

func (f *fakeJobs) OpenAttempt(ctx context.Context, jobID string, attemptNo int, provider string) (*models.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if job.Status != models.JobStatusQueued {
		return nil, storage.ErrConflict
	}
	for _, a := range f.attempts {
		if a.JobID == jobID && a.AttemptNo == attemptNo {
			return nil, storage.ErrDuplicate
		}
	}
	attempt := models.NewAttempt(jobID, attemptNo, provider)
	f.attempts[attempt.ID] = attempt
	job.Status = models.JobStatusRunning
	job.AttemptCount = attemptNo
	return attempt, nil
}

func (f *fakeJobs) CloseAttemptSuccess(ctx context.Context, attemptID, jobID, bundleID, previewURL, rawResponse string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnSuccess {
		panic("storage exploded")
	}
	job := f.jobs[jobID]
	if job == nil || job.Status != models.JobStatusRunning {
		return storage.ErrConflict
	}
	f.attempts[attemptID].Seal(models.AttemptOutcomeSuccess, "", 0)
	job.Status = models.JobStatusCompleted
	job.BundleID = bundleID
	job.PreviewURL = previewURL
	job.RawResponse = rawResponse
	return nil
}

func (f *fakeJobs) CloseAttemptFailure(ctx context.Context, attemptID, jobID, errorMsg string, statusCode int, rawResponse string, validationErrors []string, next interfaces.NextTransition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[jobID]
	if job == nil || job.Status != models.JobStatusRunning {
		return storage.ErrConflict
	}
	f.attempts[attemptID].Seal(models.AttemptOutcomeFail, errorMsg, statusCode)
	job.ErrorMessage = errorMsg
	job.ValidationLog = validationErrors
	if next == interfaces.NextRequeue {
		job.Status = models.JobStatusQueued
	} else {
		job.Status = models.JobStatusFailed
	}
	f.closeErrors = append(f.closeErrors, errorMsg)
	return nil
}

func (f *fakeJobs) GetAttempts(ctx context.Context, jobID string) ([]*models.Attempt, error) {
	return nil, nil
}

func (f *fakeJobs) FailStaleJobs(ctx context.Context, threshold time.Duration) (int, error) {
	return 0, nil
}

func (f *fakeJobs) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	return 0, nil
}

type publishedMessage struct {
	jobID   string
	attempt int
	delay   time.Duration
}

type fakeQueue struct {
	mu        sync.Mutex
	published []publishedMessage
	failNext  bool
}

func (q *fakeQueue) Publish(ctx context.Context, jobID string, attempt int) error {
	return q.PublishDelayed(ctx, jobID, attempt, 0)
}

func (q *fakeQueue) PublishDelayed(ctx context.Context, jobID string, attempt int, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext {
		return errors.New("queue unavailable")
	}
	q.published = append(q.published, publishedMessage{jobID: jobID, attempt: attempt, delay: delay})
	return nil
}

type fakeGenerator struct {
	result *models.GenerationResult
	panics bool
	calls  int
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) *models.GenerationResult {
	g.calls++
	if g.panics {
		panic("generator blew up")
	}
	return g.result
}

func (g *fakeGenerator) Provider() llm.ProviderType { return llm.ProviderGemini }
func (g *fakeGenerator) Close() error               { return nil }

func cleanTemplate(t *testing.T) map[string]any {
	t.Helper()
	var pkg map[string]any
	raw := `{
		"metadata": {"name": "Shop", "pageType": "landing", "route": "/shop"},
		"theme": {"primaryColor": "#3b82f6", "darkMode": false},
		"sections": [
			{"type": "hero", "title": "Welcome"},
			{"type": "features", "items": [{"title": "Fast"}]},
			{"type": "cta", "buttons": [{"label": "Go"}]}
		]
	}`
	if err := json.Unmarshal([]byte(raw), &pkg); err != nil {
		t.Fatalf("Failed to decode fixture: %v", err)
	}
	return pkg
}

type processorEnv struct {
	jobs      *fakeJobs
	queue     *fakeQueue
	generator *fakeGenerator
	processor *Processor
}

func newProcessorEnv(t *testing.T, generator *fakeGenerator) *processorEnv {
	t.Helper()
	logger := arbor.NewLogger()
	jobs := newFakeJobs()
	queue := &fakeQueue{}
	client := telegram.NewClient(&common.TelegramConfig{}, logger)
	notifier := telegram.NewNotifier(client, "", logger)
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	processor := NewProcessor(
		jobs,
		queue,
		generator,
		preview.NewSanitizer(),
		preview.NewBundleStore(t.TempDir(), logger),
		notifier,
		policy,
		logger,
	)
	return &processorEnv{jobs: jobs, queue: queue, generator: generator, processor: processor}
}

func (e *processorEnv) createJob(t *testing.T) *models.Job {
	t.Helper()
	job := models.NewJob("evt-1", 100, 200, "build me a shop page")
	if err := e.jobs.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	return job
}

func TestRetryPolicy(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	if !policy.ShouldRetry(1) || !policy.ShouldRetry(2) {
		t.Error("Attempts below the cap should retry")
	}
	if policy.ShouldRetry(3) {
		t.Error("Attempt at the cap must not retry")
	}

	backoffs := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range backoffs {
		if got := policy.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestProcessSuccess(t *testing.T) {
	env := newProcessorEnv(t, &fakeGenerator{
		result: &models.GenerationResult{
			Success:     true,
			Template:    cleanTemplate(t),
			RawResponse: "raw",
		},
	})
	job := env.createJob(t)

	err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: job.ID, Attempt: 1})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	got, _ := env.jobs.GetJob(context.Background(), job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("Expected completed, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.BundleID == "" || got.PreviewURL == "" {
		t.Error("Completed job must carry bundle id and preview URL")
	}
	if len(env.queue.published) != 0 {
		t.Error("Success must not requeue")
	}
}

func TestProcessRetryableFailure(t *testing.T) {
	env := newProcessorEnv(t, &fakeGenerator{
		result: &models.GenerationResult{
			Success:    false,
			Error:      "Error 503: service unavailable",
			StatusCode: 503,
			Retryable:  true,
		},
	})
	job := env.createJob(t)

	if err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: job.ID, Attempt: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	got, _ := env.jobs.GetJob(context.Background(), job.ID)
	if got.Status != models.JobStatusQueued {
		t.Fatalf("Expected requeued, got %s", got.Status)
	}
	if len(env.queue.published) != 1 {
		t.Fatalf("Expected one delayed publish, got %d", len(env.queue.published))
	}
	msg := env.queue.published[0]
	if msg.attempt != 2 {
		t.Errorf("Expected attempt 2 in requeue, got %d", msg.attempt)
	}
	if msg.delay != time.Second {
		t.Errorf("Expected base backoff for first retry, got %v", msg.delay)
	}
}

func TestProcessPermanentFailure(t *testing.T) {
	env := newProcessorEnv(t, &fakeGenerator{
		result: &models.GenerationResult{
			Success:    false,
			Error:      "Error 400: invalid argument",
			StatusCode: 400,
			Retryable:  false,
		},
	})
	job := env.createJob(t)

	if err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: job.ID, Attempt: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	got, _ := env.jobs.GetJob(context.Background(), job.ID)
	if got.Status != models.JobStatusFailed {
		t.Fatalf("Expected failed, got %s", got.Status)
	}
	if len(env.queue.published) != 0 {
		t.Error("Permanent failure must not requeue")
	}
}

func TestProcessExhaustedRetries(t *testing.T) {
	env := newProcessorEnv(t, &fakeGenerator{
		result: &models.GenerationResult{
			Success:   false,
			Error:     "timeout",
			Retryable: true,
		},
	})
	job := env.createJob(t)

	// Two attempts already burned; the third is the last
	env.jobs.mu.Lock()
	env.jobs.jobs[job.ID].AttemptCount = 2
	env.jobs.mu.Unlock()

	if err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: job.ID, Attempt: 3}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	got, _ := env.jobs.GetJob(context.Background(), job.ID)
	if got.Status != models.JobStatusFailed {
		t.Fatalf("Expected terminal failure after exhausted retries, got %s", got.Status)
	}
	if len(env.queue.published) != 0 {
		t.Error("Exhausted retries must not requeue")
	}
}

func TestProcessValidationRejection(t *testing.T) {
	pkg := cleanTemplate(t)
	pkg["dataSources"] = []any{map[string]any{"id": "d1", "endpoint": "delete.users"}}

	env := newProcessorEnv(t, &fakeGenerator{
		result: &models.GenerationResult{Success: true, Template: pkg, RawResponse: "raw"},
	})
	job := env.createJob(t)

	if err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: job.ID, Attempt: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	got, _ := env.jobs.GetJob(context.Background(), job.ID)
	if got.Status != models.JobStatusQueued {
		t.Fatalf("Validation rejection should requeue, got %s", got.Status)
	}
	if len(got.ValidationLog) == 0 {
		t.Error("Expected validation errors recorded on the job")
	}
	if len(env.queue.published) != 1 {
		t.Error("Expected a delayed retry after validation rejection")
	}
}

func TestProcessTerminalJobDropped(t *testing.T) {
	env := newProcessorEnv(t, &fakeGenerator{})
	job := env.createJob(t)
	env.jobs.mu.Lock()
	env.jobs.jobs[job.ID].Status = models.JobStatusCompleted
	env.jobs.mu.Unlock()

	if err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: job.ID, Attempt: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if env.generator.calls != 0 {
		t.Error("Terminal job must not reach the model")
	}
}

func TestProcessMissingJob(t *testing.T) {
	env := newProcessorEnv(t, &fakeGenerator{})

	if err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: "no-such-job", Attempt: 1}); err != nil {
		t.Fatalf("Missing job should ack, got error: %v", err)
	}
	if env.generator.calls != 0 {
		t.Error("Missing job must not reach the model")
	}
}

func TestProcessPanicRecovered(t *testing.T) {
	env := newProcessorEnv(t, &fakeGenerator{panics: true})
	job := env.createJob(t)

	if err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: job.ID, Attempt: 1}); err != nil {
		t.Fatalf("Panic should be folded into the failure path, got: %v", err)
	}

	got, _ := env.jobs.GetJob(context.Background(), job.ID)
	if got.Status != models.JobStatusQueued {
		t.Fatalf("Panic should requeue, got %s", got.Status)
	}
	if len(env.queue.published) != 1 {
		t.Error("Expected a delayed retry after panic")
	}
}

func TestProcessFinalizePanicSealed(t *testing.T) {
	env := newProcessorEnv(t, &fakeGenerator{
		result: &models.GenerationResult{Success: true, Template: cleanTemplate(t), RawResponse: "raw"},
	})
	env.jobs.panicOnSuccess = true
	job := env.createJob(t)

	if err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: job.ID, Attempt: 1}); err != nil {
		t.Fatalf("Panic past the attempt fence should be folded into the failure path, got: %v", err)
	}

	got, _ := env.jobs.GetJob(context.Background(), job.ID)
	if got.Status != models.JobStatusQueued {
		t.Fatalf("Expected requeued after sealed failure, got %s", got.Status)
	}
	if len(env.queue.published) != 1 {
		t.Error("Expected a delayed retry after the panic was sealed")
	}
}

func TestProcessRateLimitedRetryUsesServerDelay(t *testing.T) {
	env := newProcessorEnv(t, &fakeGenerator{
		result: &models.GenerationResult{
			Success:    false,
			Error:      "Error 429: RESOURCE_EXHAUSTED. Please retry in 42s.",
			StatusCode: 429,
			Retryable:  true,
			RetryAfter: 42 * time.Second,
		},
	})
	job := env.createJob(t)

	if err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: job.ID, Attempt: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(env.queue.published) != 1 {
		t.Fatalf("Expected one delayed publish, got %d", len(env.queue.published))
	}
	if got := env.queue.published[0].delay; got != 42*time.Second {
		t.Errorf("Expected the provider-suggested delay to win over backoff, got %v", got)
	}
}

func TestProcessRequeuePublishFailure(t *testing.T) {
	env := newProcessorEnv(t, &fakeGenerator{
		result: &models.GenerationResult{Success: false, Error: "timeout", Retryable: true},
	})
	env.queue.failNext = true
	job := env.createJob(t)

	if err := env.processor.Handle(context.Background(), &models.QueueMessage{JobID: job.ID, Attempt: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	got, _ := env.jobs.GetJob(context.Background(), job.ID)
	if got.Status != models.JobStatusFailed {
		t.Fatalf("Unpublishable retry must fail the job, got %s", got.Status)
	}
	if len(env.jobs.markFailed) != 1 {
		t.Error("Expected MarkFailed compensation after publish error")
	}
}
