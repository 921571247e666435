package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
	"github.com/morket/scraper/internal/services/jobs"
	"github.com/morket/scraper/internal/validators"
)

const defaultSyncTimeout = 60 * time.Second

// ScrapeHandler serves task submission and polling.
type ScrapeHandler struct {
	jobs     *jobs.Service
	executor interfaces.TaskExecutor
	urls     *validators.URLValidator
	validate *validator.Validate
	logger   arbor.ILogger

	// syncTimeout applies when the sync request omits timeout_seconds.
	syncTimeout time.Duration
}

func NewScrapeHandler(jobService *jobs.Service, taskExecutor interfaces.TaskExecutor, urls *validators.URLValidator, logger arbor.ILogger) *ScrapeHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &ScrapeHandler{
		jobs:        jobService,
		executor:    taskExecutor,
		urls:        urls,
		validate:    validator.New(),
		logger:      logger,
		syncTimeout: defaultSyncTimeout,
	}
}

// Create handles POST /api/v1/scrape: queue one async task.
func (h *ScrapeHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondMethodNotAllowed(w)
		return
	}

	var req models.ScrapeRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		respondError(w, h.logger, appErr)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, h.logger, validationError(err))
		return
	}
	if err := h.urls.Validate(req.TargetURL); err != nil {
		respondError(w, h.logger, err)
		return
	}

	task, err := h.jobs.CreateTask(req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	respondData(w, map[string]interface{}{
		"task_id": task.ID,
		"status":  string(task.Status),
	})
}

// CreateSync handles POST /api/v1/scrape/sync: execute one task inline,
// bypassing the queue, under the request's timeout.
func (h *ScrapeHandler) CreateSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondMethodNotAllowed(w)
		return
	}

	var req models.SyncScrapeRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		respondError(w, h.logger, appErr)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, h.logger, validationError(err))
		return
	}
	if err := h.urls.Validate(req.TargetURL); err != nil {
		respondError(w, h.logger, err)
		return
	}

	timeout := h.syncTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	task := h.jobs.RegisterTask(req.ScrapeRequest)

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	_, err := h.executor.Execute(ctx, task)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		if task.Status != models.TaskFailed {
			task.Fail("Sync task timed out")
		}
		respondError(w, h.logger, models.NewTaskTimeoutError(""))
		return
	}

	data := map[string]interface{}{
		"task_id": task.ID,
		"status":  string(task.Status),
		"result":  task.Result,
	}
	if task.Error != "" {
		data["error"] = task.Error
	}
	respondData(w, data)
}

// GetTask handles GET /api/v1/scrape/{task_id}.
func (h *ScrapeHandler) GetTask(w http.ResponseWriter, r *http.Request, taskID string) {
	if r.Method != http.MethodGet {
		respondMethodNotAllowed(w)
		return
	}

	task, err := h.jobs.GetTask(taskID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	data := map[string]interface{}{
		"task_id":     task.ID,
		"status":      string(task.Status),
		"target_type": string(task.TargetType),
		"target_url":  task.TargetURL,
		"created_at":  task.CreatedAt,
	}
	if task.Status == models.TaskCompleted {
		data["result"] = task.Result
	}
	if task.Status == models.TaskFailed {
		data["error"] = task.Error
	}
	respondData(w, data)
}
