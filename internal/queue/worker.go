package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/models"
)

// Handler processes one queue message. A returned error dead-letters the
// delivery; the handler is expected to persist job outcomes itself and
// return nil for anything recoverable through job state.
type Handler func(ctx context.Context, msg *models.QueueMessage) error

// WorkerPool manages a pool of workers that process queue messages.
// Each worker holds at most one unacked delivery at a time.
//
// Polling and handler execution run under separate contexts so that
// Stop can halt polling without aborting an in-flight episode: the
// handler context is cancelled only after every worker has drained.
type WorkerPool struct {
	queueMgr      *Manager
	handler       Handler
	pollInterval  time.Duration
	concurrency   int
	logger        arbor.ILogger
	pollCtx       context.Context
	pollCancel    context.CancelFunc
	handlerCtx    context.Context
	handlerCancel context.CancelFunc
	wg            sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queueMgr *Manager, cfg Config, logger arbor.ILogger) *WorkerPool {
	pollCtx, pollCancel := context.WithCancel(context.Background())
	handlerCtx, handlerCancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queueMgr:      queueMgr,
		pollInterval:  cfg.PollInterval,
		concurrency:   cfg.Concurrency,
		logger:        logger,
		pollCtx:       pollCtx,
		pollCancel:    pollCancel,
		handlerCtx:    handlerCtx,
		handlerCancel: handlerCancel,
	}
}

// RegisterHandler sets the message handler
func (wp *WorkerPool) RegisterHandler(handler Handler) {
	wp.handler = handler
	wp.logger.Debug().Msg("Queue handler registered")
}

// Start starts the worker pool
func (wp *WorkerPool) Start() error {
	if wp.handler == nil {
		return errors.New("no handler registered")
	}

	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	return nil
}

// Stop gracefully stops the worker pool: no new deliveries are pulled
// and in-flight handlers run to completion before Stop returns. Each
// handler stays bounded by its own per-call timeouts, not by Stop.
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.pollCancel()
	wp.wg.Wait()
	wp.handlerCancel()
	return nil
}

// worker is the main worker loop that processes messages
func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger worker starts to reduce lock contention on the shared index
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-wp.pollCtx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.pollCtx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil {
				if errors.Is(err, ErrNoMessage) {
					continue
				}
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
		}
	}
}

// processMessage receives and processes a single message
func (wp *WorkerPool) processMessage(workerID int) error {
	delivery, deleteFn, err := wp.queueMgr.Receive(wp.pollCtx)
	if err != nil {
		if errors.Is(err, ErrNoMessage) {
			return err
		}
		return fmt.Errorf("failed to receive message: %w", err)
	}

	wp.logger.Debug().
		Str("message_id", delivery.ID).
		Str("job_id", delivery.Message.JobID).
		Int("attempt", delivery.Message.Attempt).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	handlerErr := wp.runHandler(&delivery.Message)
	duration := time.Since(startTime)

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("message_id", delivery.ID).
			Str("job_id", delivery.Message.JobID).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Handler failed, dead-lettering message")

		if dlErr := wp.queueMgr.DeadLetter(wp.handlerCtx, delivery.ID, handlerErr.Error()); dlErr != nil {
			wp.logger.Warn().
				Err(dlErr).
				Str("message_id", delivery.ID).
				Msg("Failed to dead-letter message")
			return dlErr
		}
		return handlerErr
	}

	wp.logger.Debug().
		Str("message_id", delivery.ID).
		Str("job_id", delivery.Message.JobID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Message processed")

	if err := deleteFn(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("message_id", delivery.ID).
			Msg("Failed to delete message after processing")
		return err
	}

	return nil
}

// runHandler invokes the handler with panic recovery. A panicking handler
// dead-letters its delivery like any other handler error.
func (wp *WorkerPool) runHandler(msg *models.QueueMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			wp.logger.Error().
				Str("job_id", msg.JobID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Recovered from panic in queue handler")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return wp.handler(wp.handlerCtx, msg)
}
