// -----------------------------------------------------------------------
// Job processor - drives one running episode per queue message
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/interfaces"
	"github.com/ternarybob/pagesmith/internal/models"
	"github.com/ternarybob/pagesmith/internal/services/llm"
	"github.com/ternarybob/pagesmith/internal/services/preview"
	"github.com/ternarybob/pagesmith/internal/services/telegram"
	"github.com/ternarybob/pagesmith/internal/services/validator"
	storage "github.com/ternarybob/pagesmith/internal/storage/badger"
)

// RetryPolicy holds the backoff parameters for failed attempts
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// ShouldRetry decides whether a failed attempt gets another episode
func (p RetryPolicy) ShouldRetry(attemptNo int) bool {
	return attemptNo < p.MaxRetries
}

// Backoff returns the delay before retry n (1-indexed):
// base doubles each attempt, capped at MaxDelay
func (p RetryPolicy) Backoff(attemptNo int) time.Duration {
	if attemptNo < 1 {
		attemptNo = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attemptNo; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Processor executes one generation attempt per queue delivery:
// fetch, guard, model call, validate, sanitize, render, store, notify.
// Every outcome is sealed in the store before the message is acked.
type Processor struct {
	jobs      interfaces.JobStorage
	queue     interfaces.QueuePublisher
	generator llm.Generator
	sanitizer *preview.Sanitizer
	bundles   *preview.BundleStore
	notifier  *telegram.Notifier
	policy    RetryPolicy
	logger    arbor.ILogger
}

// NewProcessor wires the generation pipeline
func NewProcessor(
	jobs interfaces.JobStorage,
	queue interfaces.QueuePublisher,
	generator llm.Generator,
	sanitizer *preview.Sanitizer,
	bundles *preview.BundleStore,
	notifier *telegram.Notifier,
	policy RetryPolicy,
	logger arbor.ILogger,
) *Processor {
	return &Processor{
		jobs:      jobs,
		queue:     queue,
		generator: generator,
		sanitizer: sanitizer,
		bundles:   bundles,
		notifier:  notifier,
		policy:    policy,
		logger:    logger,
	}
}

// Handle processes one queue message. A nil return acks the message;
// recovery from mid-episode failures runs through the persisted job
// state, never through queue redelivery.
func (p *Processor) Handle(ctx context.Context, msg *models.QueueMessage) error {
	job, err := p.jobs.GetJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Dedupe bookkeeping outlived the job; drop
			p.logger.Debug().Str("job_id", msg.JobID).Msg("Job not found, dropping message")
			return nil
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	// Idempotency fence against redeliveries
	if job.IsTerminal() {
		p.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Job already terminal, dropping message")
		return nil
	}

	attemptNo := job.AttemptCount + 1
	attempt, err := p.jobs.OpenAttempt(ctx, job.ID, attemptNo, string(p.generator.Provider()))
	if err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrDuplicate) {
			// Another worker owns the episode
			p.logger.Debug().Str("job_id", job.ID).Msg("Attempt fence rejected, dropping message")
			return nil
		}
		return fmt.Errorf("failed to open attempt: %w", err)
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Int("attempt", attemptNo).
		Msg("Processing job")

	return p.runAttempt(ctx, job, attempt, attemptNo)
}

// runAttempt drives one sealed episode. Any panic past the attempt fence
// is folded into the retryable failure path so the job never sticks in
// running until the stale sweep.
func (p *Processor) runAttempt(ctx context.Context, job *models.Job, attempt *models.Attempt, attemptNo int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("job_id", job.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic during attempt")
			err = p.fail(ctx, job, attempt, attemptNo, &models.GenerationResult{
				Success:   false,
				Error:     fmt.Sprintf("internal error: %v", r),
				Retryable: true,
			})
		}
	}()

	result := p.runGeneration(ctx, job)

	if result.Success {
		finalizeErr := p.finalize(ctx, job, attempt, result)
		if finalizeErr == nil {
			return nil
		}
		// Rendering or storage failed after a good generation; treat as
		// transient and retry
		result = &models.GenerationResult{
			Success:     false,
			Error:       finalizeErr.Error(),
			RawResponse: result.RawResponse,
			Retryable:   true,
		}
	}

	return p.fail(ctx, job, attempt, attemptNo, result)
}

// runGeneration calls the model and validates its output
func (p *Processor) runGeneration(ctx context.Context, job *models.Job) *models.GenerationResult {
	result := p.generator.Generate(ctx, job.Prompt)
	if !result.Success {
		return result
	}

	validation := validator.Validate(result.Template)
	result.Validation = validation
	if !validation.Valid() {
		allErrors := validation.AllErrors()
		p.logger.Warn().
			Str("job_id", job.ID).
			Int("error_count", len(allErrors)).
			Msg("Model output rejected by validator")
		return &models.GenerationResult{
			Success:     false,
			Template:    result.Template,
			RawResponse: result.RawResponse,
			Error:       "validation failed: " + joinFirst(allErrors, 3),
			Validation:  validation,
			Retryable:   true,
		}
	}

	return result
}

// finalize sanitizes, renders and stores the accepted template, then
// seals the attempt and notifies the chat
func (p *Processor) finalize(ctx context.Context, job *models.Job, attempt *models.Attempt, result *models.GenerationResult) error {
	cleaned := p.sanitizer.SanitizeTemplate(result.Template)

	tmpl, err := models.ParseTemplate(cleaned)
	if err != nil {
		return fmt.Errorf("failed to parse sanitized template: %w", err)
	}

	html, err := preview.RenderTemplate(tmpl)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	bundleID, err := p.bundles.CreateBundle(html)
	if err != nil {
		return fmt.Errorf("failed to store bundle: %w", err)
	}

	previewURL := p.bundles.PreviewURL(bundleID)
	if err := p.jobs.CloseAttemptSuccess(ctx, attempt.ID, job.ID, bundleID, previewURL, result.RawResponse); err != nil {
		// Orphaned bundle would never be referenced; remove it
		if rmErr := p.bundles.RemoveBundle(bundleID); rmErr != nil {
			p.logger.Warn().Err(rmErr).Str("bundle_id", bundleID).Msg("Failed to remove orphaned bundle")
		}
		return fmt.Errorf("failed to close attempt: %w", err)
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Str("bundle_id", bundleID).
		Str("preview_url", previewURL).
		Msg("Job completed")

	p.notifier.NotifyCompleted(job.ChatID, previewURL)
	return nil
}

// fail seals the attempt and either requeues with backoff or terminates
func (p *Processor) fail(ctx context.Context, job *models.Job, attempt *models.Attempt, attemptNo int, result *models.GenerationResult) error {
	var validationErrors []string
	if result.Validation != nil {
		validationErrors = result.Validation.AllErrors()
	}

	retry := result.Retryable && p.policy.ShouldRetry(attemptNo)
	next := interfaces.NextTerminal
	if retry {
		next = interfaces.NextRequeue
	}

	if err := p.jobs.CloseAttemptFailure(ctx, attempt.ID, job.ID, result.Error, result.StatusCode, result.RawResponse, validationErrors, next); err != nil {
		return fmt.Errorf("failed to close attempt: %w", err)
	}

	if !retry {
		p.logger.Warn().
			Str("job_id", job.ID).
			Int("attempt", attemptNo).
			Str("error", result.Error).
			Msg("Job failed terminally")
		p.notifier.NotifyFailed(job.ChatID, result.Error)
		return nil
	}

	delay := p.policy.Backoff(attemptNo)
	if result.RetryAfter > delay {
		// Rate-limited providers suggest their own retry window
		delay = result.RetryAfter
	}
	if err := p.queue.PublishDelayed(ctx, job.ID, attemptNo+1, delay); err != nil {
		// The job must not stay queued-but-unpublished
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to requeue job")
		if mfErr := p.jobs.MarkFailed(ctx, job.ID, "requeue failed: "+err.Error()); mfErr != nil {
			p.logger.Error().Err(mfErr).Str("job_id", job.ID).Msg("Failed to mark job failed after requeue error")
		}
		p.notifier.NotifyFailed(job.ChatID, "")
		return nil
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Int("attempt", attemptNo).
		Str("delay", delay.String()).
		Str("error", result.Error).
		Msg("Job requeued with backoff")
	return nil
}

func joinFirst(items []string, n int) string {
	if len(items) < n {
		n = len(items)
	}
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += "; "
		}
		out += items[i]
	}
	return out
}
