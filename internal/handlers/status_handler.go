package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/common"
	"github.com/ternarybob/pagesmith/internal/interfaces"
	"github.com/ternarybob/pagesmith/internal/models"
	"github.com/ternarybob/pagesmith/internal/queue"
)

// StatusHandler serves operational visibility endpoints
type StatusHandler struct {
	jobs   interfaces.JobStorage
	events interfaces.EventStorage
	queue  *queue.Manager
	logger arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(jobs interfaces.JobStorage, events interfaces.EventStorage, queueManager *queue.Manager, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		jobs:   jobs,
		events: events,
		queue:  queueManager,
		logger: logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx := r.Context()
	counts := make(map[string]int)
	for _, status := range []models.JobStatus{
		models.JobStatusQueued,
		models.JobStatusRunning,
		models.JobStatusCompleted,
		models.JobStatusFailed,
	} {
		n, err := h.jobs.CountJobsByStatus(ctx, status)
		if err != nil {
			h.logger.Error().Err(err).Str("status", string(status)).Msg("Failed to count jobs")
			WriteError(w, http.StatusInternalServerError, "failed to count jobs")
			return
		}
		counts[string(status)] = n
	}

	eventCount, err := h.events.CountEvents(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count events")
		WriteError(w, http.StatusInternalServerError, "failed to count events")
		return
	}

	queueLength, err := h.queue.Length(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to measure queue length")
		WriteError(w, http.StatusInternalServerError, "failed to measure queue")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":      common.GetVersion(),
		"jobs":         counts,
		"events":       eventCount,
		"queue_length": queueLength,
	})
}

// GetDeadLettersHandler handles GET /api/queue/dead-letters
func (h *StatusHandler) GetDeadLettersHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := GetLimitParam(r, 50, 200)
	letters, err := h.queue.ListDeadLetters(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list dead letters")
		WriteError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dead_letters": letters,
		"count":        len(letters),
	})
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": common.GetVersion(),
	})
}
