package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/models"
)

// ErrNoMessage is returned when no message is visible
var ErrNoMessage = models.ErrNoMessage

// storedMessage is the internal structure persisted in Badger
type storedMessage struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// Delivery is one received message plus the bookkeeping the consumer
// needs to ack or dead-letter it
type Delivery struct {
	ID           string
	Message      models.QueueMessage
	ReceiveCount int
}

// poisonedEntry is a message past its receive cap, collected during the
// scan and parked outside the claim transaction
type poisonedEntry struct {
	indexKey []byte
	msg      storedMessage
}

// DeadLetterMessage is a message parked for operator inspection.
// Dead letters are never retried automatically.
type DeadLetterMessage struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	DeadAt       time.Time           `json:"dead_at"`
	Reason       string              `json:"reason"`
	ReceiveCount int                 `json:"receive_count"`
}

// Manager implements a persistent queue over BadgerDB.
//
// Key layout:
//
//	queue:{name}:msg:{id}                  message data
//	queue:{name}:index:{visibleAt}:{id}    visibility index (zero-padded unixnano)
//	queue:{name}:dead:{id}                 dead-letter sink
//
// Delayed delivery sets VisibleAt in the future; the index ordering makes
// Receive skip it until due. Delays survive restarts because the index is
// durable.
type Manager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// NewManager creates a new Badger-backed queue manager
func NewManager(db *badger.DB, queueName string, visibilityTimeout time.Duration, maxReceive int, logger arbor.ILogger) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 5
	}

	return &Manager{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		logger:            logger,
	}, nil
}

// Publish enqueues a work item with at-least-once delivery
func (m *Manager) Publish(ctx context.Context, jobID string, attempt int) error {
	return m.enqueue(models.QueueMessage{JobID: jobID, Attempt: attempt}, time.Now())
}

// PublishDelayed enqueues a work item that becomes visible only after delay.
// Ordering relative to non-delayed items is not guaranteed.
func (m *Manager) PublishDelayed(ctx context.Context, jobID string, attempt int, delay time.Duration) error {
	return m.enqueue(models.QueueMessage{JobID: jobID, Attempt: attempt}, time.Now().Add(delay))
}

func (m *Manager) enqueue(body models.QueueMessage, visibleAt time.Time) error {
	id := uuid.New().String()

	qMsg := storedMessage{
		ID:           id,
		Body:         body,
		EnqueuedAt:   time.Now(),
		VisibleAt:    visibleAt,
		ReceiveCount: 0,
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, id), []byte{})
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	m.logger.Trace().
		Str("queue", m.queueName).
		Str("job_id", body.JobID).
		Int("attempt", body.Attempt).
		Str("visible_at", visibleAt.Format(time.RFC3339)).
		Msg("Message enqueued")

	return nil
}

// Receive pulls the oldest visible message. The returned delete function
// acks the message; an unacked message becomes visible again after the
// visibility timeout. Messages received more than maxReceive times are
// routed to the dead-letter sink instead of being delivered.
func (m *Manager) Receive(ctx context.Context) (*Delivery, func() error, error) {
	var qMsg storedMessage
	var msgID string
	var oldIndexKey []byte
	var poisoned []poisonedEntry

	err := m.db.Update(func(txn *badger.Txn) error {
		poisoned = poisoned[:0]
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue // Skip invalid keys
			}

			if ts.After(now) {
				// Index keys sort by timestamp; nothing further is ready
				break
			}

			msgItem, err := txn.Get(m.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean up
					if err := txn.Delete(item.KeyCopy(nil)); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := msgItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}

			// Poison message: park it instead of redelivering forever
			if qMsg.ReceiveCount >= m.maxReceive {
				poisoned = append(poisoned, poisonedEntry{indexKey: item.KeyCopy(nil), msg: qMsg})
				continue
			}

			found = true
			msgID = id
			oldIndexKey = item.KeyCopy(nil)
			break
		}

		if !found {
			return ErrNoMessage
		}

		// Claim: bump receive count and push visibility forward
		qMsg.ReceiveCount++
		qMsg.VisibleAt = time.Now().Add(m.visibilityTimeout)

		newData, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(msgID), newData); err != nil {
			return err
		}

		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, msgID), []byte{})
	})

	// Parking runs in its own transaction: the claim transaction is
	// discarded whenever the closure returns ErrNoMessage, which would
	// silently resurrect the poison messages.
	if len(poisoned) > 0 {
		dlErr := m.db.Update(func(txn *badger.Txn) error {
			for i := range poisoned {
				if e := m.deadLetterInTxn(txn, poisoned[i].indexKey, &poisoned[i].msg, "max receive count exceeded"); e != nil {
					return e
				}
			}
			return nil
		})
		if dlErr != nil {
			m.logger.Warn().Err(dlErr).Str("queue", m.queueName).Msg("Failed to park poison messages")
		}
	}

	if err != nil {
		return nil, nil, err
	}

	delivery := &Delivery{
		ID:           msgID,
		Message:      qMsg.Body,
		ReceiveCount: qMsg.ReceiveCount,
	}

	deleteFn := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			return m.removeInTxn(txn, msgID)
		})
	}

	return delivery, deleteFn, nil
}

// DeadLetter moves a received message to the dead-letter sink
func (m *Manager) DeadLetter(ctx context.Context, messageID, reason string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(messageID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil // Already gone
			}
			return err
		}

		var qMsg storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		return m.deadLetterInTxn(txn, m.indexKey(qMsg.VisibleAt, messageID), &qMsg, reason)
	})
}

// ListDeadLetters returns parked messages for operator inspection
func (m *Manager) ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetterMessage, error) {
	var out []*DeadLetterMessage

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(fmt.Sprintf("queue:%s:dead:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var dead DeadLetterMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dead)
			}); err != nil {
				continue
			}
			out = append(out, &dead)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return out, nil
}

// Extend extends the visibility timeout for an in-flight message
func (m *Manager) Extend(ctx context.Context, messageID string, duration time.Duration) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(messageID))
		if err != nil {
			return err
		}

		var qMsg storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		oldVisibleAt := qMsg.VisibleAt
		qMsg.VisibleAt = time.Now().Add(duration)

		newData, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(messageID), newData); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(oldVisibleAt, messageID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(m.indexKey(qMsg.VisibleAt, messageID), []byte{})
	})
}

// Length returns the number of pending (non-dead) messages
func (m *Manager) Length(ctx context.Context) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the queue manager (the DB is managed externally)
func (m *Manager) Close() error {
	return nil
}

// deadLetterInTxn moves a message from the live key space to the dead sink
func (m *Manager) deadLetterInTxn(txn *badger.Txn, indexKey []byte, qMsg *storedMessage, reason string) error {
	dead := DeadLetterMessage{
		ID:           qMsg.ID,
		Body:         qMsg.Body,
		EnqueuedAt:   qMsg.EnqueuedAt,
		DeadAt:       time.Now(),
		Reason:       reason,
		ReceiveCount: qMsg.ReceiveCount,
	}

	data, err := json.Marshal(dead)
	if err != nil {
		return err
	}
	if err := txn.Set(m.deadKey(qMsg.ID), data); err != nil {
		return err
	}

	if err := txn.Delete(indexKey); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	if err := txn.Delete(m.msgKey(qMsg.ID)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}

	m.logger.Warn().
		Str("queue", m.queueName).
		Str("message_id", qMsg.ID).
		Str("job_id", qMsg.Body.JobID).
		Str("reason", reason).
		Msg("Message routed to dead-letter sink")

	return nil
}

// removeInTxn deletes a message and its current index entry
func (m *Manager) removeInTxn(txn *badger.Txn, messageID string) error {
	item, err := txn.Get(m.msgKey(messageID))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil // Already deleted
		}
		return err
	}

	var currentMsg storedMessage
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &currentMsg)
	}); err != nil {
		return err
	}

	if err := txn.Delete(m.indexKey(currentMsg.VisibleAt, messageID)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	return txn.Delete(m.msgKey(messageID))
}

// Helpers

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *Manager) deadKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:dead:%s", m.queueName, id))
}

func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	ts := visibleAt.UnixNano()
	// Zero pad to 20 digits so string sorting matches numeric sorting
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, ts, id))
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefixStr := fmt.Sprintf("queue:%s:index:", m.queueName)
	if len(key) <= len(prefixStr) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefixStr):])
	// Suffix is "{20-digit-ts}:{id}"

	if len(suffix) < 21 { // 20 digits + 1 colon
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	tsStr := suffix[:20]
	id := suffix[21:]

	var ts int64
	_, err := fmt.Sscanf(tsStr, "%d", &ts)
	if err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), id, nil
}
