package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/pagesmith/internal/models"
)

// NextTransition tells CloseAttemptFailure where the job goes after a
// failed attempt
type NextTransition string

const (
	// NextTerminal seals the job as failed
	NextTerminal NextTransition = "terminal"
	// NextRequeue returns the job to queued for another attempt
	NextRequeue NextTransition = "requeue"
)

// EventStorage - interface for inbound webhook event persistence
type EventStorage interface {
	// InsertEventOnce inserts an event row; on a duplicate external id it
	// returns the owning row with duplicate=true instead of an error.
	InsertEventOnce(ctx context.Context, externalID int64, raw []byte) (event *models.InboundEvent, duplicate bool, err error)

	// FindJobByExternalEvent returns the job created for an external update
	// id, or ErrNotFound.
	FindJobByExternalEvent(ctx context.Context, externalID int64) (*models.Job, error)

	CountEvents(ctx context.Context) (int, error)
}

// JobStorage - interface for job and attempt lifecycle persistence.
// Every mutating operation guards on the current status, so queue
// redeliveries can never double-process a job.
type JobStorage interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)

	// MarkFailed force-fails a job outside a running episode. Used by the
	// ingest compensation path when publish fails, and by the stale-job
	// sweep. No-op with ErrConflict if the job is already terminal.
	MarkFailed(ctx context.Context, jobID string, errorMsg string) error

	// OpenAttempt transitions queued->running, increments attempt_count and
	// inserts the attempt row in one transaction. Returns ErrConflict if the
	// job is not queued, ErrDuplicate if (job_id, attempt_no) exists.
	OpenAttempt(ctx context.Context, jobID string, attemptNo int, provider string) (*models.Attempt, error)

	// CloseAttemptSuccess seals the attempt and transitions running->completed.
	// Returns ErrConflict if the job is not running.
	CloseAttemptSuccess(ctx context.Context, attemptID, jobID, bundleID, previewURL, rawResponse string) error

	// CloseAttemptFailure seals the attempt FAIL and transitions
	// running->failed (next=NextTerminal) or running->queued (next=NextRequeue).
	CloseAttemptFailure(ctx context.Context, attemptID, jobID, errorMsg string, statusCode int, rawResponse string, validationErrors []string, next NextTransition) error

	GetAttempts(ctx context.Context, jobID string) ([]*models.Attempt, error)

	// FailStaleJobs terminates jobs stuck running longer than threshold
	FailStaleJobs(ctx context.Context, threshold time.Duration) (int, error)

	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	EventStorage() EventStorage
	JobStorage() JobStorage
	DB() interface{}
	Close() error
}
