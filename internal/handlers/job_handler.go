package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/models"
	"github.com/morket/scraper/internal/services/jobs"
	"github.com/morket/scraper/internal/validators"
)

// JobHandler serves batch job submission, polling, results, and
// cancellation.
type JobHandler struct {
	jobs     *jobs.Service
	urls     *validators.URLValidator
	validate *validator.Validate
	logger   arbor.ILogger
}

func NewJobHandler(jobService *jobs.Service, urls *validators.URLValidator, logger arbor.ILogger) *JobHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &JobHandler{
		jobs:     jobService,
		urls:     urls,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateBatch handles POST /api/v1/scrape/batch.
func (h *JobHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondMethodNotAllowed(w)
		return
	}

	var req models.BatchScrapeRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		respondError(w, h.logger, appErr)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, h.logger, validationError(err))
		return
	}
	for _, target := range req.Targets {
		if err := h.urls.Validate(target.TargetURL); err != nil {
			respondError(w, h.logger, err)
			return
		}
	}

	job, err := h.jobs.CreateJob(req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondData(w, map[string]interface{}{
		"job_id":      job.ID,
		"total_tasks": job.TotalTasks,
		"status":      string(job.Status),
	})
}

// Get handles GET /api/v1/scrape/jobs/{job_id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		respondMethodNotAllowed(w)
		return
	}

	job, err := h.jobs.GetJob(jobID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondData(w, jobSnapshot(job))
}

// Results handles GET /api/v1/scrape/jobs/{job_id}/results.
func (h *JobHandler) Results(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		respondMethodNotAllowed(w)
		return
	}

	results, err := h.jobs.GetJobResults(jobID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondData(w, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// Cancel handles POST /api/v1/scrape/jobs/{job_id}/cancel.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		respondMethodNotAllowed(w)
		return
	}

	job, err := h.jobs.CancelJob(jobID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondData(w, jobSnapshot(job))
}

func jobSnapshot(job *models.Job) map[string]interface{} {
	return map[string]interface{}{
		"job_id":          job.ID,
		"status":          string(job.Status),
		"total_tasks":     job.TotalTasks,
		"completed_tasks": job.CompletedTasks,
		"failed_tasks":    job.FailedTasks,
		"created_at":      job.CreatedAt,
		"updated_at":      job.UpdatedAt,
	}
}
