package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/morket/scraper/internal/models"
)

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Public probes (no auth)
	mux.HandleFunc("/health", s.app.StatusHandler.Health)
	mux.HandleFunc("/readiness", s.app.StatusHandler.Readiness)
	mux.HandleFunc("/metrics", s.app.StatusHandler.Metrics)

	// Task submission
	mux.HandleFunc("/api/v1/scrape", s.app.ScrapeHandler.Create)
	mux.HandleFunc("/api/v1/scrape/sync", s.app.ScrapeHandler.CreateSync)
	mux.HandleFunc("/api/v1/scrape/batch", s.app.JobHandler.CreateBatch)

	// Job and task lookups by id. Exact patterns above take precedence
	// over these prefix matches.
	mux.HandleFunc("/api/v1/scrape/jobs/", s.handleJobRoutes)
	mux.HandleFunc("/api/v1/scrape/", s.handleTaskRoutes)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

// handleTaskRoutes serves GET /api/v1/scrape/{task_id}.
func (s *Server) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimPrefix(r.URL.Path, "/api/v1/scrape/")
	if taskID == "" || strings.Contains(taskID, "/") {
		s.notFoundHandler(w, r)
		return
	}
	s.app.ScrapeHandler.GetTask(w, r, taskID)
}

// handleJobRoutes serves the /api/v1/scrape/jobs/{job_id} subtree:
// GET {job_id}, GET {job_id}/results, POST {job_id}/cancel.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/scrape/jobs/")

	switch {
	case strings.HasSuffix(rest, "/results"):
		jobID := strings.TrimSuffix(rest, "/results")
		if jobID == "" || strings.Contains(jobID, "/") {
			break
		}
		s.app.JobHandler.Results(w, r, jobID)
		return
	case strings.HasSuffix(rest, "/cancel"):
		jobID := strings.TrimSuffix(rest, "/cancel")
		if jobID == "" || strings.Contains(jobID, "/") {
			break
		}
		s.app.JobHandler.Cancel(w, r, jobID)
		return
	case rest != "" && !strings.Contains(rest, "/"):
		s.app.JobHandler.Get(w, r, rest)
		return
	}

	s.notFoundHandler(w, r)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	msg := "Not found"
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(models.APIResponse{Success: false, Error: &msg})
}
