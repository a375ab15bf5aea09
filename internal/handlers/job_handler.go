package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pagesmith/internal/interfaces"
	"github.com/ternarybob/pagesmith/internal/models"
	storage "github.com/ternarybob/pagesmith/internal/storage/badger"
)

// JobHandler serves job inspection endpoints
type JobHandler struct {
	jobs   interfaces.JobStorage
	logger arbor.ILogger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobs interfaces.JobStorage, logger arbor.ILogger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// jobDetail is the job plus its attempt history
type jobDetail struct {
	*models.Job
	Attempts []*models.Attempt `json:"attempts"`
}

// ListJobsHandler handles GET /api/jobs with optional ?status= and ?limit=
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := models.JobStatus(r.URL.Query().Get("status"))
	limit := GetLimitParam(r, 50, 200)

	jobs, err := h.jobs.ListJobs(r.Context(), status, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to fetch job")
		WriteError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}

	attempts, err := h.jobs.GetAttempts(r.Context(), jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to fetch attempts")
		WriteError(w, http.StatusInternalServerError, "failed to fetch attempts")
		return
	}

	WriteJSON(w, http.StatusOK, jobDetail{Job: job, Attempts: attempts})
}
