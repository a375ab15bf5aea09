package worker

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/interfaces"
)

// StaleJobSweeper periodically fails jobs stuck in running. A crashed
// worker leaves its job running forever; the sweep is the recovery path.
type StaleJobSweeper struct {
	jobs      interfaces.JobStorage
	threshold time.Duration
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	logger    arbor.ILogger
}

// NewStaleJobSweeper creates a sweeper that fails running jobs with no
// progress within threshold, checking every interval
func NewStaleJobSweeper(jobs interfaces.JobStorage, threshold, interval time.Duration, logger arbor.ILogger) *StaleJobSweeper {
	return &StaleJobSweeper{
		jobs:      jobs,
		threshold: threshold,
		interval:  interval,
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Start launches the sweep loop. No-op when interval is zero.
func (s *StaleJobSweeper) Start() {
	if s.interval <= 0 {
		s.logger.Info().Msg("Stale job sweep disabled")
		close(s.done)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info().
			Str("threshold", s.threshold.String()).
			Str("interval", s.interval.String()).
			Msg("Stale job sweep started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *StaleJobSweeper) sweep(ctx context.Context) {
	count, err := s.jobs.FailStaleJobs(ctx, s.threshold)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Stale job sweep failed")
		return
	}
	if count > 0 {
		s.logger.Warn().Int("count", count).Msg("Failed stale jobs")
	}
}

// Stop halts the sweep loop and waits for it to exit
func (s *StaleJobSweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}
