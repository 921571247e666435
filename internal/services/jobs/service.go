package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
)

// maxInlineResults caps the webhook payload: larger jobs send only the
// summary and a null results field.
const maxInlineResults = 100

// webhookTimeout bounds one delivery cycle including retries.
const webhookTimeout = 2 * time.Minute

// Service owns the in-memory job and task stores. Stores are mutated
// only from CreateTask/CreateJob/CancelJob and the queue's completion
// callback; workers never touch them directly.
type Service struct {
	mu    sync.Mutex
	jobs  map[string]*models.Job
	tasks map[string]*models.Task

	scheduler interfaces.TaskScheduler
	webhooks  interfaces.WebhookSender
	logger    arbor.ILogger
}

func NewService(scheduler interfaces.TaskScheduler, webhooks interfaces.WebhookSender, logger arbor.ILogger) *Service {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Service{
		jobs:      make(map[string]*models.Job),
		tasks:     make(map[string]*models.Task),
		scheduler: scheduler,
		webhooks:  webhooks,
		logger:    logger,
	}
}

func newTask(req models.ScrapeRequest, jobID string, priority int) *models.Task {
	return &models.Task{
		ID:              common.NewTaskID(),
		JobID:           jobID,
		TargetType:      req.TargetType,
		TargetURL:       req.TargetURL,
		RequestedFields: req.RequestedFields,
		WorkspaceID:     req.WorkspaceID,
		Status:          models.TaskQueued,
		CreatedAt:       time.Now().UTC(),
		Priority:        priority,
	}
}

// CreateTask stores and enqueues one standalone task at highest
// priority.
func (s *Service) CreateTask(req models.ScrapeRequest) (*models.Task, error) {
	task := newTask(req, "", 0)

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	if err := s.scheduler.Submit(task); err != nil {
		s.mu.Lock()
		delete(s.tasks, task.ID)
		s.mu.Unlock()
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("target_type", string(task.TargetType)).
		Msg("Task queued")
	return task, nil
}

// RegisterTask stores a task that runs outside the queue, so that
// polling by id still works for synchronous submissions.
func (s *Service) RegisterTask(req models.ScrapeRequest) *models.Task {
	task := newTask(req, "", 0)
	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()
	return task
}

// CreateJob fans a batch out into tasks with priority equal to the
// batch size, stores everything, and enqueues atomically.
func (s *Service) CreateJob(req models.BatchScrapeRequest) (*models.Job, error) {
	jobID := common.NewJobID()
	size := len(req.Targets)

	tasks := make([]*models.Task, 0, size)
	taskIDs := make([]string, 0, size)
	for _, target := range req.Targets {
		task := newTask(target, jobID, size)
		tasks = append(tasks, task)
		taskIDs = append(taskIDs, task.ID)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          jobID,
		TaskIDs:     taskIDs,
		Status:      models.JobQueued,
		TotalTasks:  size,
		CallbackURL: req.CallbackURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.jobs[jobID] = job
	for _, task := range tasks {
		s.tasks[task.ID] = task
	}
	s.mu.Unlock()

	if err := s.scheduler.SubmitBatch(tasks); err != nil {
		s.mu.Lock()
		delete(s.jobs, jobID)
		for _, task := range tasks {
			delete(s.tasks, task.ID)
		}
		s.mu.Unlock()
		return nil, err
	}

	s.logger.Info().
		Str("job_id", jobID).
		Int("total_tasks", size).
		Msg("Job queued")
	return job, nil
}

// GetTask returns a snapshot of the task.
func (s *Service) GetTask(taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, models.NewTaskNotFoundError(fmt.Sprintf("task %s not found", taskID))
	}
	snapshot := *task
	return &snapshot, nil
}

// GetJob returns a snapshot of the job.
func (s *Service) GetJob(jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, models.NewJobNotFoundError(fmt.Sprintf("job %s not found", jobID))
	}
	snapshot := *job
	return &snapshot, nil
}

// GetJobResults returns the completed tasks of a job that carry a
// result.
func (s *Service) GetJobResults(jobID string) ([]models.TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, models.NewJobNotFoundError(fmt.Sprintf("job %s not found", jobID))
	}
	return s.resultsLocked(job), nil
}

func (s *Service) resultsLocked(job *models.Job) []models.TaskResult {
	results := make([]models.TaskResult, 0, len(job.TaskIDs))
	for _, taskID := range job.TaskIDs {
		task, ok := s.tasks[taskID]
		if !ok || task.Status != models.TaskCompleted || task.Result == nil {
			continue
		}
		results = append(results, models.TaskResult{
			TaskID:     task.ID,
			TargetType: task.TargetType,
			TargetURL:  task.TargetURL,
			Result:     task.Result,
		})
	}
	return results
}

// CancelJob removes the job's queued tasks, freezes the status at
// cancelled, and fires a webhook with the then-current counters.
// Running tasks keep going; their outcomes update counters only.
func (s *Service) CancelJob(jobID string) (*models.Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, models.NewJobNotFoundError(fmt.Sprintf("job %s not found", jobID))
	}
	if job.Status.Terminal() {
		snapshot := *job
		s.mu.Unlock()
		return &snapshot, nil
	}
	// Freeze the label before the queue scan: its completion callbacks
	// see a terminal job and only touch counters.
	job.Status = models.JobCancelled
	job.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	s.scheduler.CancelJob(jobID)

	s.mu.Lock()
	snapshot := *job
	payload := s.webhookPayloadLocked(job)
	callback := job.CallbackURL
	s.mu.Unlock()

	s.deliverWebhook(jobID, callback, payload)
	s.logger.Info().Str("job_id", jobID).Msg("Job cancelled")
	return &snapshot, nil
}

// OnTaskComplete is the queue's completion callback. It updates the
// parent job's counters and drives the terminal transition.
func (s *Service) OnTaskComplete(task *models.Task) {
	if task.JobID == "" {
		return
	}

	s.mu.Lock()
	job, ok := s.jobs[task.JobID]
	if !ok {
		s.mu.Unlock()
		return
	}

	alreadyTerminal := job.Status.Terminal()
	if job.Status == models.JobQueued {
		job.Status = models.JobRunning
	}

	switch task.Status {
	case models.TaskCompleted:
		job.CompletedTasks++
	case models.TaskFailed:
		job.FailedTasks++
	default:
		s.mu.Unlock()
		return
	}
	job.UpdatedAt = time.Now().UTC()

	finished := job.CompletedTasks+job.FailedTasks >= job.TotalTasks
	if finished && !alreadyTerminal {
		switch {
		case job.FailedTasks == 0:
			job.Status = models.JobCompleted
		case job.CompletedTasks == 0:
			job.Status = models.JobFailed
		default:
			job.Status = models.JobPartiallyCompleted
		}
	}

	var payload map[string]interface{}
	var callback string
	if finished && !alreadyTerminal {
		payload = s.webhookPayloadLocked(job)
		callback = job.CallbackURL
	}
	jobID, status := job.ID, job.Status
	s.mu.Unlock()

	if payload != nil {
		s.deliverWebhook(jobID, callback, payload)
		s.logger.Info().
			Str("job_id", jobID).
			Str("status", string(status)).
			Msg("Job finished")
	}
}

// webhookPayloadLocked builds the delivery payload. Caller holds s.mu.
func (s *Service) webhookPayloadLocked(job *models.Job) map[string]interface{} {
	var results interface{}
	if job.TotalTasks <= maxInlineResults {
		results = s.resultsLocked(job)
	}
	return map[string]interface{}{
		"job_id": job.ID,
		"status": string(job.Status),
		"summary": map[string]interface{}{
			"total":     job.TotalTasks,
			"completed": job.CompletedTasks,
			"failed":    job.FailedTasks,
		},
		"results": results,
	}
}

func (s *Service) deliverWebhook(jobID, callback string, payload map[string]interface{}) {
	common.SafeGo(s.logger, fmt.Sprintf("webhook-%s", jobID), func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		if err := s.webhooks.Send(ctx, callback, payload); err != nil {
			s.logger.Warn().Str("job_id", jobID).Err(err).Msg("Webhook delivery gave up")
		}
	})
}
