package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/pagesmith/internal/interfaces"
	"github.com/ternarybob/pagesmith/internal/models"
)

// EventStorage implements the EventStorage interface for Badger
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

// InsertEventOnce inserts an inbound event. The unique index on ExternalID
// makes the first insert own the event; a repeat delivery returns the
// existing row with duplicate=true instead of an error.
func (s *EventStorage) InsertEventOnce(ctx context.Context, externalID int64, raw []byte) (*models.InboundEvent, bool, error) {
	event := models.NewInboundEvent(externalID, raw)

	err := s.db.Store().Insert(event.ID, event)
	if err == nil {
		s.logger.Debug().
			Int64("external_id", externalID).
			Str("event_id", event.ID).
			Msg("Inbound event recorded")
		return event, false, nil
	}

	if err == badgerhold.ErrUniqueExists {
		existing, findErr := s.findByExternalID(externalID)
		if findErr != nil {
			return nil, false, fmt.Errorf("failed to load duplicate event: %w", findErr)
		}
		return existing, true, nil
	}

	return nil, false, fmt.Errorf("failed to insert event: %w", err)
}

// FindJobByExternalEvent returns the job created for an external update id
func (s *EventStorage) FindJobByExternalEvent(ctx context.Context, externalID int64) (*models.Job, error) {
	event, err := s.findByExternalID(externalID)
	if err != nil {
		return nil, err
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("EventID").Eq(event.ID).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find job for event: %w", err)
	}
	if len(jobs) == 0 {
		return nil, ErrNotFound
	}
	return &jobs[0], nil
}

// CountEvents returns the number of recorded inbound events
func (s *EventStorage) CountEvents(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.InboundEvent{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return int(count), nil
}

func (s *EventStorage) findByExternalID(externalID int64) (*models.InboundEvent, error) {
	var events []models.InboundEvent
	if err := s.db.Store().Find(&events, badgerhold.Where("ExternalID").Eq(externalID).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return &events[0], nil
}
