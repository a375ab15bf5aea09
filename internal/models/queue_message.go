package models

import "errors"

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// QueueMessage is the structure stored in the queue.
// Keep it simple - just enough to route the job.
type QueueMessage struct {
	JobID   string `json:"job_id"`  // References jobs.id
	Attempt int    `json:"attempt"` // 1-indexed attempt this delivery should run
}
