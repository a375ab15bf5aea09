package preview

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// CleanupService removes preview bundles older than the retention window
// on a cron schedule. Disabled when the schedule is empty.
type CleanupService struct {
	store     *BundleStore
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	logger    arbor.ILogger
}

// NewCleanupService creates a bundle retention sweeper
func NewCleanupService(store *BundleStore, schedule string, retention time.Duration, logger arbor.ILogger) *CleanupService {
	return &CleanupService{
		store:     store,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start registers the sweep and starts the scheduler
func (s *CleanupService) Start() error {
	if s.schedule == "" {
		s.logger.Debug().Msg("Bundle cleanup disabled (no schedule)")
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		removed, err := s.Sweep()
		if err != nil {
			s.logger.Warn().Err(err).Msg("Bundle cleanup sweep failed")
			return
		}
		if removed > 0 {
			s.logger.Info().Int("removed", removed).Msg("Bundle cleanup sweep completed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.schedule).
		Str("retention", s.retention.String()).
		Msg("Bundle cleanup scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish
func (s *CleanupService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep removes bundles whose directory mtime is past the retention window
func (s *CleanupService) Sweep() (int, error) {
	cutoff := time.Now().Add(-s.retention)

	entries, err := os.ReadDir(s.store.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.store.basePath, entry.Name())); err != nil {
			s.logger.Warn().Err(err).Str("bundle_id", entry.Name()).Msg("Failed to remove expired bundle")
			continue
		}
		removed++
	}
	return removed, nil
}
