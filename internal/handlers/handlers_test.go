package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/models"
	"github.com/morket/scraper/internal/services/jobs"
	"github.com/morket/scraper/internal/validators"
)

type stubScheduler struct {
	mu        sync.Mutex
	submitted []*models.Task
	submitErr error
	cancelled []string
	stats     models.QueueStats
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
func (s *stubScheduler) Stats() models.QueueStats        { return s.stats }
func (s *stubScheduler) Start(ctx context.Context)       {}
func (s *stubScheduler) Drain(ctx context.Context) error { return nil }

type stubWebhooks struct{}

func (stubWebhooks) Send(ctx context.Context, url string, payload map[string]interface{}) error {
	return nil
}

type stubExecutor struct {
	result interface{}
	err    error
	block  bool
}

func (e *stubExecutor) Execute(ctx context.Context, task *models.Task) (interface{}, error) {
	if e.block {
		<-ctx.Done()
		task.Fail("navigation timed out")
		return nil, models.NewTaskTimeoutError("")
	}
	if e.err != nil {
		task.Fail(e.err.Error())
		return nil, e.err
	}
	task.Complete(e.result)
	return e.result, nil
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   *string                `json:"error"`
	Meta    interface{}            `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func newFixture() (*jobs.Service, *stubScheduler) {
	scheduler := &stubScheduler{}
	service := jobs.NewService(scheduler, stubWebhooks{}, arbor.NewLogger())
	return service, scheduler
}

func scrapeBody(url string) map[string]interface{} {
	return map[string]interface{}{
		"target_type":  "company_website",
		"target_url":   url,
		"workspace_id": "ws_1",
	}
}

func TestCreateTaskQueued(t *testing.T) {
	service, scheduler := newFixture()
	h := NewScrapeHandler(service, &stubExecutor{}, validators.NewURLValidator(true), arbor.NewLogger())

	rec := postJSON(t, h.Create, "/api/v1/scrape", scrapeBody("http://localhost/about"))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Data["task_id"])
	assert.Equal(t, "queued", env.Data["status"])
	assert.Len(t, scheduler.submitted, 1)
}

func TestCreateRejectsMissingFields(t *testing.T) {
	service, _ := newFixture()
	h := NewScrapeHandler(service, &stubExecutor{}, validators.NewURLValidator(true), arbor.NewLogger())

	rec := postJSON(t, h.Create, "/api/v1/scrape", map[string]interface{}{
		"target_type": "company_website",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
}

func TestCreateRejectsUnknownTargetType(t *testing.T) {
	service, _ := newFixture()
	h := NewScrapeHandler(service, &stubExecutor{}, validators.NewURLValidator(true), arbor.NewLogger())

	body := scrapeBody("http://localhost/about")
	body["target_type"] = "instagram_profile"
	rec := postJSON(t, h.Create, "/api/v1/scrape", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateRejectsPrivateAddress(t *testing.T) {
	service, scheduler := newFixture()
	h := NewScrapeHandler(service, &stubExecutor{}, validators.NewURLValidator(true), arbor.NewLogger())

	rec := postJSON(t, h.Create, "/api/v1/scrape", scrapeBody("http://192.168.1.10/admin"))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, scheduler.submitted)
}

func TestCreateQueueFull(t *testing.T) {
	service, scheduler := newFixture()
	scheduler.submitErr = models.NewQueueFullError("")
	h := NewScrapeHandler(service, &stubExecutor{}, validators.NewURLValidator(true), arbor.NewLogger())

	rec := postJSON(t, h.Create, "/api/v1/scrape", scrapeBody("http://localhost/about"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateSyncReturnsResult(t *testing.T) {
	service, _ := newFixture()
	executor := &stubExecutor{result: map[string]interface{}{"company_name": "Acme"}}
	h := NewScrapeHandler(service, executor, validators.NewURLValidator(true), arbor.NewLogger())

	rec := postJSON(t, h.CreateSync, "/api/v1/scrape/sync", scrapeBody("http://localhost/about"))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "completed", env.Data["status"])
	result, ok := env.Data["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Acme", result["company_name"])

	// The sync task stays pollable afterwards.
	taskID, _ := env.Data["task_id"].(string)
	require.NotEmpty(t, taskID)
	task, err := service.GetTask(taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)
}

func TestCreateSyncTimeout(t *testing.T) {
	service, _ := newFixture()
	h := NewScrapeHandler(service, &stubExecutor{block: true}, validators.NewURLValidator(true), arbor.NewLogger())

	h.syncTimeout = 50 * time.Millisecond

	rec := postJSON(t, h.CreateSync, "/api/v1/scrape/sync", scrapeBody("http://localhost/slow"))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
}

func TestCreateSyncReportsFailedTask(t *testing.T) {
	service, _ := newFixture()
	executor := &stubExecutor{err: models.NewInternalError("extraction failed")}
	h := NewScrapeHandler(service, executor, validators.NewURLValidator(true), arbor.NewLogger())

	rec := postJSON(t, h.CreateSync, "/api/v1/scrape/sync", scrapeBody("http://localhost/about"))

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "failed", env.Data["status"])
	assert.NotEmpty(t, env.Data["error"])
}

func TestGetTask(t *testing.T) {
	service, scheduler := newFixture()
	h := NewScrapeHandler(service, &stubExecutor{}, validators.NewURLValidator(true), arbor.NewLogger())

	created, err := service.CreateTask(models.ScrapeRequest{
		TargetType:  models.TargetJobPosting,
		TargetURL:   "http://localhost/jobs/1",
		WorkspaceID: "ws_1",
	})
	require.NoError(t, err)
	scheduler.submitted[0].Fail("blocked by site")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scrape/"+created.ID, nil)
	rec := httptest.NewRecorder()
	h.GetTask(rec, req, created.ID)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, created.ID, env.Data["task_id"])
	assert.Equal(t, "failed", env.Data["status"])
	assert.Equal(t, "blocked by site", env.Data["error"])
}

func TestGetTaskUnknown(t *testing.T) {
	service, _ := newFixture()
	h := NewScrapeHandler(service, &stubExecutor{}, validators.NewURLValidator(true), arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scrape/task_missing", nil)
	rec := httptest.NewRecorder()
	h.GetTask(rec, req, "task_missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBatch(t *testing.T) {
	service, scheduler := newFixture()
	h := NewJobHandler(service, validators.NewURLValidator(true), arbor.NewLogger())

	rec := postJSON(t, h.CreateBatch, "/api/v1/scrape/batch", map[string]interface{}{
		"targets": []map[string]interface{}{
			scrapeBody("http://localhost/a"),
			scrapeBody("http://localhost/b"),
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.NotEmpty(t, env.Data["job_id"])
	assert.Equal(t, float64(2), env.Data["total_tasks"])
	assert.Equal(t, "queued", env.Data["status"])
	assert.Len(t, scheduler.submitted, 2)
}

func TestCreateBatchRejectsEmptyTargets(t *testing.T) {
	service, _ := newFixture()
	h := NewJobHandler(service, validators.NewURLValidator(true), arbor.NewLogger())

	rec := postJSON(t, h.CreateBatch, "/api/v1/scrape/batch", map[string]interface{}{
		"targets": []map[string]interface{}{},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateBatchRejectsPrivateTarget(t *testing.T) {
	service, scheduler := newFixture()
	h := NewJobHandler(service, validators.NewURLValidator(true), arbor.NewLogger())

	rec := postJSON(t, h.CreateBatch, "/api/v1/scrape/batch", map[string]interface{}{
		"targets": []map[string]interface{}{
			scrapeBody("http://localhost/a"),
			scrapeBody("http://10.0.0.5/internal"),
		},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, scheduler.submitted, "no task of a rejected batch may be enqueued")
}

func TestJobLifecycleEndpoints(t *testing.T) {
	service, scheduler := newFixture()
	h := NewJobHandler(service, validators.NewURLValidator(true), arbor.NewLogger())

	job, err := service.CreateJob(models.BatchScrapeRequest{
		Targets: []models.ScrapeRequest{
			{TargetType: models.TargetCompanyWebsite, TargetURL: "http://localhost/a", WorkspaceID: "ws_1"},
			{TargetType: models.TargetCompanyWebsite, TargetURL: "http://localhost/b", WorkspaceID: "ws_1"},
		},
	})
	require.NoError(t, err)

	scheduler.submitted[0].Complete(map[string]interface{}{"company_name": "A"})
	service.OnTaskComplete(scheduler.submitted[0])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scrape/jobs/"+job.ID, nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req, job.ID)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "running", env.Data["status"])
	assert.Equal(t, float64(1), env.Data["completed_tasks"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/scrape/jobs/"+job.ID+"/results", nil)
	rec = httptest.NewRecorder()
	h.Results(rec, req, job.ID)

	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.Equal(t, float64(1), env.Data["count"])
	results, ok := env.Data["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
}

func TestCancelJobEndpoint(t *testing.T) {
	service, scheduler := newFixture()
	h := NewJobHandler(service, validators.NewURLValidator(true), arbor.NewLogger())

	job, err := service.CreateJob(models.BatchScrapeRequest{
		Targets: []models.ScrapeRequest{
			{TargetType: models.TargetCompanyWebsite, TargetURL: "http://localhost/a", WorkspaceID: "ws_1"},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape/jobs/"+job.ID+"/cancel", nil)
	rec := httptest.NewRecorder()
	h.Cancel(rec, req, job.ID)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "cancelled", env.Data["status"])
	assert.Equal(t, []string{job.ID}, scheduler.cancelled)
}

func TestJobEndpointsUnknownID(t *testing.T) {
	service, _ := newFixture()
	h := NewJobHandler(service, validators.NewURLValidator(true), arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scrape/jobs/job_missing", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req, "job_missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/scrape/jobs/job_missing/cancel", nil)
	rec = httptest.NewRecorder()
	h.Cancel(rec, req, "job_missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	service, _ := newFixture()
	h := NewScrapeHandler(service, &stubExecutor{}, validators.NewURLValidator(true), arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scrape", nil)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "target_url", snakeCase("TargetURL"))
	assert.Equal(t, "workspace_id", snakeCase("WorkspaceID"))
	assert.Equal(t, "targets[0]", snakeCase("Targets[0]"))
	assert.Equal(t, "timeout_seconds", snakeCase("TimeoutSeconds"))
}
