package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/models"
)

type stubScheduler struct {
	mu        sync.Mutex
	submitted []*models.Task
	submitErr error
	cancelled []string
}

func (s *stubScheduler) Submit(task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submitted = append(s.submitted, task)
	return nil
}

func (s *stubScheduler) SubmitBatch(tasks []*models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submitted = append(s.submitted, tasks...)
	return nil
}

func (s *stubScheduler) CancelJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, jobID)
}

func (s *stubScheduler) JobCancelled(jobID string) bool  { return false }
func (s *stubScheduler) Stats() models.QueueStats        { return models.QueueStats{} }
func (s *stubScheduler) Start(ctx context.Context)       {}
func (s *stubScheduler) Drain(ctx context.Context) error { return nil }

type stubWebhooks struct {
	mu       sync.Mutex
	payloads []map[string]interface{}
	urls     []string
	ch       chan struct{}
}

func newStubWebhooks() *stubWebhooks {
	return &stubWebhooks{ch: make(chan struct{}, 16)}
}

func (w *stubWebhooks) Send(ctx context.Context, url string, payload map[string]interface{}) error {
	w.mu.Lock()
	w.payloads = append(w.payloads, payload)
	w.urls = append(w.urls, url)
	w.mu.Unlock()
	w.ch <- struct{}{}
	return nil
}

func (w *stubWebhooks) wait(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case <-w.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.payloads[len(w.payloads)-1]
}

func newService() (*Service, *stubScheduler, *stubWebhooks) {
	scheduler := &stubScheduler{}
	webhooks := newStubWebhooks()
	return NewService(scheduler, webhooks, arbor.NewLogger()), scheduler, webhooks
}

func scrapeRequest(url string) models.ScrapeRequest {
	return models.ScrapeRequest{
		TargetType:  models.TargetCompanyWebsite,
		TargetURL:   url,
		WorkspaceID: "ws_1",
	}
}

func TestCreateTaskStandalonePriority(t *testing.T) {
	s, scheduler, _ := newService()

	task, err := s.CreateTask(scrapeRequest("https://acme.test"))
	require.NoError(t, err)
	assert.Equal(t, 0, task.Priority)
	assert.Empty(t, task.JobID)
	assert.Equal(t, models.TaskQueued, task.Status)
	require.Len(t, scheduler.submitted, 1)

	fetched, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, fetched.ID)
}

func TestCreateTaskRollsBackOnQueueFull(t *testing.T) {
	s, scheduler, _ := newService()
	scheduler.submitErr = models.NewQueueFullError("")

	task, err := s.CreateTask(scrapeRequest("https://acme.test"))
	require.Error(t, err)
	require.Nil(t, task)

	s.mu.Lock()
	assert.Empty(t, s.tasks)
	s.mu.Unlock()
}

func TestCreateJobFansOutWithBatchPriority(t *testing.T) {
	s, scheduler, _ := newService()

	job, err := s.CreateJob(models.BatchScrapeRequest{
		Targets: []models.ScrapeRequest{
			scrapeRequest("https://a.test"),
			scrapeRequest("https://b.test"),
			scrapeRequest("https://c.test"),
		},
		CallbackURL: "https://callback.test/hook",
	})
	require.NoError(t, err)

	assert.Equal(t, models.JobQueued, job.Status)
	assert.Equal(t, 3, job.TotalTasks)
	require.Len(t, scheduler.submitted, 3)
	for _, task := range scheduler.submitted {
		assert.Equal(t, 3, task.Priority)
		assert.Equal(t, job.ID, task.JobID)
	}
}

func TestJobLifecycleToCompleted(t *testing.T) {
	s, scheduler, webhooks := newService()

	job, err := s.CreateJob(models.BatchScrapeRequest{
		Targets: []models.ScrapeRequest{
			scrapeRequest("https://a.test"),
			scrapeRequest("https://b.test"),
		},
	})
	require.NoError(t, err)

	first := scheduler.submitted[0]
	first.Complete(map[string]interface{}{"company_name": "A"})
	s.OnTaskComplete(first)

	running, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, running.Status)
	assert.Equal(t, 1, running.CompletedTasks)

	second := scheduler.submitted[1]
	second.Complete(map[string]interface{}{"company_name": "B"})
	s.OnTaskComplete(second)

	payload := webhooks.wait(t)
	assert.Equal(t, job.ID, payload["job_id"])
	assert.Equal(t, "completed", payload["status"])

	finished, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, finished.Status)

	results, err := s.GetJobResults(job.ID)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestJobMixedOutcomesArePartiallyCompleted(t *testing.T) {
	s, scheduler, webhooks := newService()

	job, err := s.CreateJob(models.BatchScrapeRequest{
		Targets: []models.ScrapeRequest{
			scrapeRequest("https://a.test"),
			scrapeRequest("https://b.test"),
		},
	})
	require.NoError(t, err)

	scheduler.submitted[0].Complete(map[string]interface{}{"company_name": "A"})
	s.OnTaskComplete(scheduler.submitted[0])
	scheduler.submitted[1].Fail("navigation blew up")
	s.OnTaskComplete(scheduler.submitted[1])

	payload := webhooks.wait(t)
	assert.Equal(t, "partially_completed", payload["status"])

	finished, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPartiallyCompleted, finished.Status)

	// Only completed tasks with a result are returned.
	results, err := s.GetJobResults(job.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestJobAllFailed(t *testing.T) {
	s, scheduler, webhooks := newService()

	job, err := s.CreateJob(models.BatchScrapeRequest{
		Targets: []models.ScrapeRequest{scrapeRequest("https://a.test")},
	})
	require.NoError(t, err)

	scheduler.submitted[0].Fail("boom")
	s.OnTaskComplete(scheduler.submitted[0])

	payload := webhooks.wait(t)
	assert.Equal(t, "failed", payload["status"])

	finished, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, finished.Status)
}

func TestCancelJobFreezesLabel(t *testing.T) {
	s, scheduler, webhooks := newService()

	job, err := s.CreateJob(models.BatchScrapeRequest{
		Targets: []models.ScrapeRequest{
			scrapeRequest("https://a.test"),
			scrapeRequest("https://b.test"),
		},
	})
	require.NoError(t, err)

	cancelled, err := s.CancelJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, cancelled.Status)
	assert.Equal(t, []string{job.ID}, scheduler.cancelled)

	payload := webhooks.wait(t)
	assert.Equal(t, "cancelled", payload["status"])

	// A straggler that was already running finishes afterwards: counters
	// move, the label does not.
	scheduler.submitted[0].Complete(map[string]interface{}{"company_name": "A"})
	s.OnTaskComplete(scheduler.submitted[0])

	after, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, after.Status)
	assert.Equal(t, 1, after.CompletedTasks)
}

func TestCancelJobIdempotent(t *testing.T) {
	s, _, webhooks := newService()

	job, err := s.CreateJob(models.BatchScrapeRequest{
		Targets: []models.ScrapeRequest{scrapeRequest("https://a.test")},
	})
	require.NoError(t, err)

	_, err = s.CancelJob(job.ID)
	require.NoError(t, err)
	webhooks.wait(t)

	again, err := s.CancelJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, again.Status)

	webhooks.mu.Lock()
	defer webhooks.mu.Unlock()
	assert.Len(t, webhooks.payloads, 1, "second cancel must not fire another webhook")
}

func TestLargeJobOmitsInlineResults(t *testing.T) {
	s, _, _ := newService()
	job := &models.Job{ID: "job_big", Status: models.JobCompleted, TotalTasks: maxInlineResults + 1}

	s.mu.Lock()
	payload := s.webhookPayloadLocked(job)
	s.mu.Unlock()

	assert.Nil(t, payload["results"])
}

func TestLookupsForUnknownIDs(t *testing.T) {
	s, _, _ := newService()

	_, err := s.GetTask("task_missing")
	var appErr *models.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrKindTaskNotFound, appErr.Kind)

	_, err = s.GetJob("job_missing")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrKindJobNotFound, appErr.Kind)

	_, err = s.GetJobResults("job_missing")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrKindJobNotFound, appErr.Kind)

	_, err = s.CancelJob("job_missing")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrKindJobNotFound, appErr.Kind)
}
