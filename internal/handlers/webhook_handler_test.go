package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/common"
	"github.com/ternarybob/pagesmith/internal/interfaces"
	"github.com/ternarybob/pagesmith/internal/models"
	"github.com/ternarybob/pagesmith/internal/services/telegram"
	storage "github.com/ternarybob/pagesmith/internal/storage/badger"
)

type memEvents struct {
	mu     sync.Mutex
	events map[int64]*models.InboundEvent
	jobs   *memJobs
}

func (m *memEvents) InsertEventOnce(ctx context.Context, externalID int64, raw []byte) (*models.InboundEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.events[externalID]; ok {
		return existing, true, nil
	}
	event := models.NewInboundEvent(externalID, raw)
	m.events[externalID] = event
	return event, false, nil
}

func (m *memEvents) FindJobByExternalEvent(ctx context.Context, externalID int64) (*models.Job, error) {
	m.mu.Lock()
	event, ok := m.events[externalID]
	m.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	m.jobs.mu.Lock()
	defer m.jobs.mu.Unlock()
	for _, job := range m.jobs.jobs {
		if job.EventID == event.ID {
			return job, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memEvents) CountEvents(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events), nil
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func (m *memJobs) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobs) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return job, nil
}

func (m *memJobs) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	return nil, nil
}

func (m *memJobs) MarkFailed(ctx context.Context, jobID string, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return storage.ErrNotFound
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = errorMsg
	return nil
}

func (m *memJobs) OpenAttempt(ctx context.Context, jobID string, attemptNo int, provider string) (*models.Attempt, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *memJobs) CloseAttemptSuccess(ctx context.Context, attemptID, jobID, bundleID, previewURL, rawResponse string) error {
	return fmt.Errorf("not implemented")
}

func (m *memJobs) CloseAttemptFailure(ctx context.Context, attemptID, jobID, errorMsg string, statusCode int, rawResponse string, validationErrors []string, next interfaces.NextTransition) error {
	return fmt.Errorf("not implemented")
}

func (m *memJobs) GetAttempts(ctx context.Context, jobID string) ([]*models.Attempt, error) {
	return nil, nil
}

func (m *memJobs) FailStaleJobs(ctx context.Context, threshold time.Duration) (int, error) {
	return 0, nil
}

func (m *memJobs) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	return 0, nil
}

type recordingQueue struct {
	mu        sync.Mutex
	published []string
	fail      bool
}

func (q *recordingQueue) Publish(ctx context.Context, jobID string, attempt int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return errors.New("queue unavailable")
	}
	q.published = append(q.published, jobID)
	return nil
}

func (q *recordingQueue) PublishDelayed(ctx context.Context, jobID string, attempt int, delay time.Duration) error {
	return q.Publish(ctx, jobID, attempt)
}

type webhookEnv struct {
	handler *WebhookHandler
	events  *memEvents
	jobs    *memJobs
	queue   *recordingQueue
}

func newWebhookEnv(t *testing.T) *webhookEnv {
	t.Helper()
	logger := arbor.NewLogger()
	jobs := &memJobs{jobs: make(map[string]*models.Job)}
	events := &memEvents{events: make(map[int64]*models.InboundEvent), jobs: jobs}
	queue := &recordingQueue{}
	client := telegram.NewClient(&common.TelegramConfig{}, logger)
	notifier := telegram.NewNotifier(client, "", logger)
	handler := NewWebhookHandler("test-secret", events, jobs, queue, notifier, logger)
	return &webhookEnv{handler: handler, events: events, jobs: jobs, queue: queue}
}

func postUpdate(t *testing.T, env *webhookEnv, secret string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/telegram/webhook", bytes.NewBufferString(body))
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	rec := httptest.NewRecorder()
	env.handler.HandleWebhook(rec, req)
	return rec
}

func updateBody(updateID int64, text string) string {
	return fmt.Sprintf(`{"update_id": %d, "message": {"chat": {"id": 100}, "from": {"id": 200}, "text": %q}}`, updateID, text)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.WebhookResponse {
	t.Helper()
	var resp models.WebhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestWebhookBadSecret(t *testing.T) {
	env := newWebhookEnv(t)

	rec := postUpdate(t, env, "wrong-secret", updateBody(1001, "/prompt build a shop"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rec.Code)
	}
	if len(env.events.events) != 0 || len(env.jobs.jobs) != 0 || len(env.queue.published) != 0 {
		t.Error("Bad secret must produce no side effects")
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	env := newWebhookEnv(t)

	for _, body := range []string{"not json", `{"message": {"chat": {"id": 5}}}`} {
		rec := postUpdate(t, env, "test-secret", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Body %q: expected 400, got %d", body, rec.Code)
		}
	}
	if len(env.events.events) != 0 {
		t.Error("Malformed body must produce no side effects")
	}
}

func TestWebhookAcceptsPrompt(t *testing.T) {
	env := newWebhookEnv(t)

	rec := postUpdate(t, env, "test-secret", updateBody(1001, "/prompt Build a landing page"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.OK || resp.JobID == "" {
		t.Fatalf("Expected ok with job id, got %+v", resp)
	}

	job, err := env.jobs.GetJob(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("Job not persisted: %v", err)
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("Expected queued job, got %s", job.Status)
	}
	if job.Prompt != "Build a landing page" {
		t.Errorf("Unexpected prompt %q", job.Prompt)
	}
	if len(env.queue.published) != 1 || env.queue.published[0] != resp.JobID {
		t.Errorf("Expected one publish for %s, got %v", resp.JobID, env.queue.published)
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	env := newWebhookEnv(t)

	first := decodeResponse(t, postUpdate(t, env, "test-secret", updateBody(1001, "/prompt Build a shop")))
	second := decodeResponse(t, postUpdate(t, env, "test-secret", updateBody(1001, "/prompt Build a shop")))

	if !second.OK {
		t.Error("Duplicate delivery should still be acknowledged")
	}
	if second.JobID != first.JobID {
		t.Errorf("Duplicate should report the original job, got %q want %q", second.JobID, first.JobID)
	}
	if second.Message != "already processing" {
		t.Errorf("Unexpected duplicate message %q", second.Message)
	}
	if len(env.jobs.jobs) != 1 || len(env.queue.published) != 1 {
		t.Error("Replayed update must create exactly one job and one publish")
	}
}

func TestWebhookCommands(t *testing.T) {
	env := newWebhookEnv(t)

	tests := []struct {
		text    string
		message string
	}{
		{"/start", ""},
		{"/help", ""},
		{"/prompt", "empty prompt"},
		{"/prompt   ", "empty prompt"},
		{"hello there", "unrecognized command"},
	}

	for i, tt := range tests {
		rec := postUpdate(t, env, "test-secret", updateBody(int64(2000+i), tt.text))
		if rec.Code != http.StatusOK {
			t.Errorf("Text %q: expected 200, got %d", tt.text, rec.Code)
			continue
		}
		resp := decodeResponse(t, rec)
		if !resp.OK || resp.JobID != "" {
			t.Errorf("Text %q: expected ok without job id, got %+v", tt.text, resp)
		}
		if resp.Message != tt.message {
			t.Errorf("Text %q: expected message %q, got %q", tt.text, tt.message, resp.Message)
		}
	}
	if len(env.jobs.jobs) != 0 {
		t.Error("Command handling must not create jobs")
	}
}

func TestWebhookNoTextAcknowledged(t *testing.T) {
	env := newWebhookEnv(t)

	rec := postUpdate(t, env, "test-secret", `{"update_id": 3001, "message": {"chat": {"id": 100}, "text": ""}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if len(env.events.events) != 0 {
		t.Error("Text-free update must not be recorded")
	}
}

func TestWebhookPublishFailure(t *testing.T) {
	env := newWebhookEnv(t)
	env.queue.fail = true

	rec := postUpdate(t, env, "test-secret", updateBody(1001, "/prompt Build a shop"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.OK {
		t.Error("Publish failure must be reported as not ok")
	}

	job, err := env.jobs.GetJob(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("Job not persisted: %v", err)
	}
	if job.Status != models.JobStatusFailed {
		t.Errorf("Unpublishable job must be failed, got %s", job.Status)
	}
}
