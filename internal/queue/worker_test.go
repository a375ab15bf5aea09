package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/models"
)

func newTestPool(t *testing.T, mgr *Manager, handler Handler) *WorkerPool {
	t.Helper()

	cfg := NewDefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.Concurrency = 1
	pool := NewWorkerPool(mgr, cfg, arbor.NewLogger())
	pool.RegisterHandler(handler)
	return pool
}

func TestStopWaitsForInFlightHandler(t *testing.T) {
	ctx := context.Background()
	mgr := newTestQueue(t, time.Minute, 5)

	started := make(chan struct{})
	var handlerCtxErr error
	var completed bool

	pool := newTestPool(t, mgr, func(hctx context.Context, msg *models.QueueMessage) error {
		close(started)
		time.Sleep(80 * time.Millisecond)
		handlerCtxErr = hctx.Err()
		completed = true
		return nil
	})

	require.NoError(t, mgr.Publish(ctx, "job-1", 1))
	require.NoError(t, pool.Start())

	<-started
	require.NoError(t, pool.Stop())

	require.True(t, completed, "in-flight handler must run to completion across Stop")
	require.NoError(t, handlerCtxErr, "handler context must stay live until the pool drains")

	length, err := mgr.Length(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, length, "completed delivery must be acked")
}

func TestHandlerErrorDeadLetters(t *testing.T) {
	ctx := context.Background()
	mgr := newTestQueue(t, time.Minute, 5)

	done := make(chan struct{})
	pool := newTestPool(t, mgr, func(hctx context.Context, msg *models.QueueMessage) error {
		defer close(done)
		return context.DeadlineExceeded
	})

	require.NoError(t, mgr.Publish(ctx, "job-1", 1))
	require.NoError(t, pool.Start())

	<-done
	require.NoError(t, pool.Stop())

	letters, err := mgr.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	require.Equal(t, "job-1", letters[0].Body.JobID)
}
