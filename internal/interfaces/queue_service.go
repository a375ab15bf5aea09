package interfaces

import (
	"context"
	"time"
)

// QueuePublisher is the producer side of the durable work queue.
// Publish is at-least-once; callers must compensate when it fails
// (commit-before-publish, mark-failed-after-publish-error).
type QueuePublisher interface {
	Publish(ctx context.Context, jobID string, attempt int) error
	PublishDelayed(ctx context.Context, jobID string, attempt int, delay time.Duration) error
}

// WorkerPool manages concurrent queue consumption
type WorkerPool interface {
	Start() error
	Stop() error
}
