package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Chat-transport ingest
	mux.HandleFunc("/telegram/webhook", s.app.WebhookHandler.HandleWebhook)

	// Preview bundles (sandboxed static serving)
	mux.HandleFunc("/p/", s.app.PreviewHandler.ServePreview)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.GetJobHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/queue/dead-letters", s.app.StatusHandler.GetDeadLettersHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	return mux
}
