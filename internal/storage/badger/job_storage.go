package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/pagesmith/internal/interfaces"
	"github.com/ternarybob/pagesmith/internal/models"
)

// JobStorage implements the JobStorage interface for Badger.
//
// Transitions run inside a single Badger transaction and guard on the
// current status, so a redelivered queue message can never open a second
// running episode or touch a terminal job.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new queued job
func (s *JobStorage) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.Status != models.JobStatusQueued {
		return fmt.Errorf("new jobs must be queued, got %s", job.Status)
	}

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		if err == badgerhold.ErrKeyExists {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Int64("chat_id", job.ChatID).
		Msg("Job created")

	return nil
}

// GetJob fetches a job by id
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns jobs filtered by status, newest first. An empty status
// returns all jobs.
func (s *JobStorage) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")
	if status != "" {
		query = badgerhold.Where("Status").Eq(status).Index("Status")
	}
	query = query.SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// MarkFailed force-fails a non-terminal job. This is the compensation path
// for ingest publish failures and the stale-job sweep; it does not seal an
// attempt.
func (s *JobStorage) MarkFailed(ctx context.Context, jobID string, errorMsg string) error {
	store := s.db.Store()
	err := store.Badger().Update(func(tx *badgerdb.Txn) error {
		var job models.Job
		if err := store.TxGet(tx, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrNotFound
			}
			return err
		}
		if job.IsTerminal() {
			return ErrConflict
		}

		job.Status = models.JobStatusFailed
		job.ErrorMessage = errorMsg
		job.UpdatedAt = time.Now().UTC()
		return store.TxUpdate(tx, jobID, &job)
	})
	if err == ErrNotFound || err == ErrConflict {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	s.logger.Warn().
		Str("job_id", jobID).
		Str("error", errorMsg).
		Msg("Job force-failed")

	return nil
}

// OpenAttempt transitions queued->running, increments attempt_count and
// inserts the attempt row, all in one transaction. The compare-and-set on
// status is the fence against concurrent running episodes.
func (s *JobStorage) OpenAttempt(ctx context.Context, jobID string, attemptNo int, provider string) (*models.Attempt, error) {
	store := s.db.Store()
	attempt := models.NewAttempt(jobID, attemptNo, provider)

	err := store.Badger().Update(func(tx *badgerdb.Txn) error {
		var job models.Job
		if err := store.TxGet(tx, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrNotFound
			}
			return err
		}
		if job.Status != models.JobStatusQueued {
			return ErrConflict
		}

		// (job_id, attempt_no) must be unique across retries
		var existing []models.Attempt
		q := badgerhold.Where("JobID").Eq(jobID).Index("JobID").And("AttemptNo").Eq(attemptNo)
		if err := store.TxFind(tx, &existing, q); err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrDuplicate
		}

		job.Status = models.JobStatusRunning
		job.AttemptCount++
		job.UpdatedAt = time.Now().UTC()
		if err := store.TxUpdate(tx, jobID, &job); err != nil {
			return err
		}

		return store.TxInsert(tx, attempt.ID, attempt)
	})
	if err == ErrNotFound || err == ErrConflict || err == ErrDuplicate {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open attempt: %w", err)
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Int("attempt", attemptNo).
		Str("provider", provider).
		Msg("Attempt opened")

	return attempt, nil
}

// CloseAttemptSuccess seals the attempt and transitions running->completed
// with the bundle reference in one transaction
func (s *JobStorage) CloseAttemptSuccess(ctx context.Context, attemptID, jobID, bundleID, previewURL, rawResponse string) error {
	store := s.db.Store()
	err := store.Badger().Update(func(tx *badgerdb.Txn) error {
		var job models.Job
		if err := store.TxGet(tx, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrNotFound
			}
			return err
		}
		if job.Status != models.JobStatusRunning {
			return ErrConflict
		}

		// No two jobs may claim the same bundle
		var claimed []models.Job
		if err := store.TxFind(tx, &claimed, badgerhold.Where("BundleID").Eq(bundleID)); err != nil {
			return err
		}
		if len(claimed) > 0 {
			return ErrDuplicate
		}

		var attempt models.Attempt
		if err := store.TxGet(tx, attemptID, &attempt); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrNotFound
			}
			return err
		}
		attempt.Seal(models.AttemptOutcomeSuccess, "", 0)
		if err := store.TxUpdate(tx, attemptID, &attempt); err != nil {
			return err
		}

		job.Status = models.JobStatusCompleted
		job.BundleID = bundleID
		job.PreviewURL = previewURL
		job.RawResponse = rawResponse
		job.ErrorMessage = ""
		job.ValidationLog = nil
		job.UpdatedAt = time.Now().UTC()
		return store.TxUpdate(tx, jobID, &job)
	})
	if err == ErrNotFound || err == ErrConflict || err == ErrDuplicate {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to close attempt: %w", err)
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("bundle_id", bundleID).
		Msg("Job completed")

	return nil
}

// CloseAttemptFailure seals the attempt FAIL and transitions the job to
// failed (terminal) or back to queued (requeue) in one transaction
func (s *JobStorage) CloseAttemptFailure(ctx context.Context, attemptID, jobID, errorMsg string, statusCode int, rawResponse string, validationErrors []string, next interfaces.NextTransition) error {
	store := s.db.Store()
	err := store.Badger().Update(func(tx *badgerdb.Txn) error {
		var job models.Job
		if err := store.TxGet(tx, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrNotFound
			}
			return err
		}
		if job.Status != models.JobStatusRunning {
			return ErrConflict
		}

		var attempt models.Attempt
		if err := store.TxGet(tx, attemptID, &attempt); err != nil {
			if err == badgerhold.ErrNotFound {
				return ErrNotFound
			}
			return err
		}
		attempt.Seal(models.AttemptOutcomeFail, errorMsg, statusCode)
		if err := store.TxUpdate(tx, attemptID, &attempt); err != nil {
			return err
		}

		if next == interfaces.NextRequeue {
			job.Status = models.JobStatusQueued
		} else {
			job.Status = models.JobStatusFailed
		}
		job.ErrorMessage = errorMsg
		if rawResponse != "" {
			job.RawResponse = rawResponse
		}
		if len(validationErrors) > 0 {
			job.ValidationLog = validationErrors
		}
		job.UpdatedAt = time.Now().UTC()
		return store.TxUpdate(tx, jobID, &job)
	})
	if err == ErrNotFound || err == ErrConflict {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to close attempt: %w", err)
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("next", string(next)).
		Str("error", errorMsg).
		Msg("Attempt failed")

	return nil
}

// GetAttempts returns a job's attempts ordered by attempt number
func (s *JobStorage) GetAttempts(ctx context.Context, jobID string) ([]*models.Attempt, error) {
	var attempts []models.Attempt
	q := badgerhold.Where("JobID").Eq(jobID).Index("JobID").SortBy("AttemptNo")
	if err := s.db.Store().Find(&attempts, q); err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}

	result := make([]*models.Attempt, len(attempts))
	for i := range attempts {
		result[i] = &attempts[i]
	}
	return result, nil
}

// FailStaleJobs terminates jobs stuck running longer than threshold.
// Covers worker crashes that left a running episode without an outcome.
func (s *JobStorage) FailStaleJobs(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	var jobs []models.Job
	q := badgerhold.Where("Status").Eq(models.JobStatusRunning).Index("Status").And("UpdatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&jobs, q); err != nil {
		return 0, fmt.Errorf("failed to find stale jobs: %w", err)
	}

	count := 0
	for i := range jobs {
		if err := s.MarkFailed(ctx, jobs[i].ID, "job stalled: no progress within threshold"); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to fail stale job")
			continue
		}
		count++
	}
	return count, nil
}

// CountJobsByStatus returns the number of jobs in a given status
func (s *JobStorage) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, badgerhold.Where("Status").Eq(status).Index("Status"))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}
