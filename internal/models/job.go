// -----------------------------------------------------------------------
// Job - Durable job lifecycle state for generation requests
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal returns true for states that permit no further transitions
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one accepted generation request.
// Created by ingest in state queued, mutated only by the worker until terminal.
//
// Transitions form a DAG:
//
//	queued -> running -> {completed, queued (retry), failed}
//
// Once completed or failed the row is immutable.
type Job struct {
	ID            string    `json:"id" badgerhold:"key"`
	EventID       string    `json:"event_id,omitempty" badgerhold:"index"` // Inbound event that created this job
	ChatID        int64     `json:"chat_id"`
	UserID        int64     `json:"user_id"`
	Prompt        string    `json:"prompt"`
	Status        JobStatus `json:"status" badgerhold:"index"`
	AttemptCount  int       `json:"attempt_count"` // Monotonically non-decreasing
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	BundleID      string    `json:"bundle_id,omitempty"` // Set iff status == completed
	PreviewURL    string    `json:"preview_url,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	RawResponse   string    `json:"raw_response,omitempty"`   // Last captured model output, for audit
	ValidationLog []string  `json:"validation_log,omitempty"` // Validator errors from the last rejected output
}

// NewJob creates a queued job for an accepted prompt
func NewJob(eventID string, chatID, userID int64, prompt string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New().String(),
		EventID:      eventID,
		ChatID:       chatID,
		UserID:       userID,
		Prompt:       prompt,
		Status:       JobStatusQueued,
		AttemptCount: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// AttemptOutcome is the sealed result of one worker execution
type AttemptOutcome string

const (
	AttemptOutcomeSuccess AttemptOutcome = "success"
	AttemptOutcomeFail    AttemptOutcome = "fail"
)

// Attempt records one worker execution of a job.
// (JobID, AttemptNo) is unique; outcome is empty while running.
type Attempt struct {
	ID           string         `json:"id" badgerhold:"key"`
	JobID        string         `json:"job_id" badgerhold:"index"`
	AttemptNo    int            `json:"attempt_no"` // 1-indexed
	Provider     string         `json:"provider"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	Outcome      AttemptOutcome `json:"outcome,omitempty"`
	ErrorDetail  string         `json:"error_detail,omitempty"`
	ProviderCode int            `json:"provider_status_code,omitempty"`
	DurationMs   int64          `json:"duration_ms,omitempty"`
}

// NewAttempt opens an attempt record for a running episode
func NewAttempt(jobID string, attemptNo int, provider string) *Attempt {
	return &Attempt{
		ID:        uuid.New().String(),
		JobID:     jobID,
		AttemptNo: attemptNo,
		Provider:  provider,
		StartedAt: time.Now().UTC(),
	}
}

// Seal closes the attempt with an outcome and computes its duration
func (a *Attempt) Seal(outcome AttemptOutcome, errorDetail string, providerCode int) {
	now := time.Now().UTC()
	a.FinishedAt = &now
	a.Outcome = outcome
	a.ErrorDetail = errorDetail
	a.ProviderCode = providerCode
	a.DurationMs = now.Sub(a.StartedAt).Milliseconds()
}

// InboundEvent is one delivery from the chat transport.
// ExternalID is unique per transport; the first insert owns the event.
// Rows are append-only.
type InboundEvent struct {
	ID         string    `json:"id" badgerhold:"key"`
	ExternalID int64     `json:"external_id" badgerhold:"unique"` // Transport update id
	ReceivedAt time.Time `json:"received_at"`
	RawPayload []byte    `json:"raw_payload"` // Opaque blob for audit
}

// NewInboundEvent creates an event row for a webhook delivery
func NewInboundEvent(externalID int64, raw []byte) *InboundEvent {
	return &InboundEvent{
		ID:         uuid.New().String(),
		ExternalID: externalID,
		ReceivedAt: time.Now().UTC(),
		RawPayload: raw,
	}
}
