package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/models"
)

// recordingExecutor completes every task and remembers the order.
type recordingExecutor struct {
	mu    sync.Mutex
	order []string
	delay time.Duration
	fail  bool
}

func (e *recordingExecutor) Execute(ctx context.Context, task *models.Task) (interface{}, error) {
	e.mu.Lock()
	e.order = append(e.order, task.ID)
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	if e.fail {
		return nil, fmt.Errorf("extraction blew up")
	}
	task.Complete(map[string]interface{}{"ok": true})
	return task.Result, nil
}

func (e *recordingExecutor) executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

func newTask(id, jobID string, priority int, created time.Time) *models.Task {
	return &models.Task{
		ID:         id,
		JobID:      jobID,
		TargetType: models.TargetCompanyWebsite,
		TargetURL:  "https://example.com",
		Status:     models.TaskQueued,
		CreatedAt:  created,
		Priority:   priority,
	}
}

func collectCompletions() (func(*models.Task), *sync.Map) {
	var done sync.Map
	return func(t *models.Task) { done.Store(t.ID, t.Status) }, &done
}

func TestPriorityOrdering(t *testing.T) {
	exec := &recordingExecutor{}
	q := NewTaskQueue(exec, Options{MaxDepth: 10, Workers: 1, TaskTimeout: time.Second}, arbor.NewLogger())

	base := time.Now()
	// Standalone tasks carry priority 0 and outrank any batch.
	require.NoError(t, q.Submit(newTask("batch-1", "job_a", 5, base)))
	require.NoError(t, q.Submit(newTask("batch-2", "job_a", 5, base.Add(time.Millisecond))))
	require.NoError(t, q.Submit(newTask("single", "", 0, base.Add(2*time.Millisecond))))

	q.Start(context.Background())
	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))

	assert.Equal(t, []string{"single", "batch-1", "batch-2"}, exec.executed())
}

func TestQueueFull(t *testing.T) {
	exec := &recordingExecutor{}
	q := NewTaskQueue(exec, Options{MaxDepth: 2, Workers: 1, TaskTimeout: time.Second}, arbor.NewLogger())

	require.NoError(t, q.Submit(newTask("t1", "", 0, time.Now())))
	require.NoError(t, q.Submit(newTask("t2", "", 0, time.Now())))

	err := q.Submit(newTask("t3", "", 0, time.Now()))
	require.Error(t, err)
	var appErr *models.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrKindQueueFull, appErr.Kind)
}

func TestSubmitBatchAllOrNothing(t *testing.T) {
	exec := &recordingExecutor{}
	q := NewTaskQueue(exec, Options{MaxDepth: 3, Workers: 1, TaskTimeout: time.Second}, arbor.NewLogger())

	require.NoError(t, q.Submit(newTask("t1", "", 0, time.Now())))

	batch := []*models.Task{
		newTask("b1", "job_b", 3, time.Now()),
		newTask("b2", "job_b", 3, time.Now()),
		newTask("b3", "job_b", 3, time.Now()),
	}
	err := q.SubmitBatch(batch)
	require.Error(t, err)
	assert.Equal(t, 1, q.Stats().Pending)

	require.NoError(t, q.SubmitBatch(batch[:2]))
	assert.Equal(t, 3, q.Stats().Pending)
}

func TestCancelJobFailsQueuedTasks(t *testing.T) {
	exec := &recordingExecutor{}
	onComplete, done := collectCompletions()
	q := NewTaskQueue(exec, Options{MaxDepth: 10, Workers: 1, TaskTimeout: time.Second, OnComplete: onComplete}, arbor.NewLogger())

	t1 := newTask("c1", "job_c", 2, time.Now())
	t2 := newTask("c2", "job_c", 2, time.Now())
	keep := newTask("k1", "job_k", 2, time.Now())
	require.NoError(t, q.SubmitBatch([]*models.Task{t1, t2, keep}))

	q.CancelJob("job_c")

	assert.True(t, q.JobCancelled("job_c"))
	assert.False(t, q.JobCancelled("job_k"))
	assert.Equal(t, models.TaskFailed, t1.Status)
	assert.Equal(t, "Cancelled", t1.Error)
	assert.Equal(t, "Cancelled", t2.Error)
	assert.Equal(t, models.TaskQueued, keep.Status)
	assert.Equal(t, 1, q.Stats().Pending)

	_, notified := done.Load("c1")
	assert.True(t, notified)
}

func TestWorkersSkipTasksOfCancelledJobs(t *testing.T) {
	exec := &recordingExecutor{}
	onComplete, done := collectCompletions()
	q := NewTaskQueue(exec, Options{MaxDepth: 10, Workers: 1, TaskTimeout: time.Second, OnComplete: onComplete}, arbor.NewLogger())

	q.CancelJob("job_d")
	late := newTask("late", "job_d", 2, time.Now())
	require.NoError(t, q.Submit(late))

	q.Start(context.Background())
	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))

	assert.Empty(t, exec.executed())
	assert.Equal(t, models.TaskFailed, late.Status)
	assert.Equal(t, "Cancelled", late.Error)
	_, notified := done.Load("late")
	assert.True(t, notified)
}

func TestTaskTimeout(t *testing.T) {
	exec := &recordingExecutor{delay: 500 * time.Millisecond}
	q := NewTaskQueue(exec, Options{MaxDepth: 10, Workers: 1, TaskTimeout: 50 * time.Millisecond}, arbor.NewLogger())

	task := newTask("slow", "", 0, time.Now())
	require.NoError(t, q.Submit(task))

	q.Start(context.Background())
	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))

	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Contains(t, task.Error, "timed out")
	assert.Equal(t, 1, q.Stats().TasksFailed)
}

func TestExecutorErrorMarksTaskFailed(t *testing.T) {
	exec := &recordingExecutor{fail: true}
	q := NewTaskQueue(exec, Options{MaxDepth: 10, Workers: 1, TaskTimeout: time.Second}, arbor.NewLogger())

	task := newTask("boom", "", 0, time.Now())
	require.NoError(t, q.Submit(task))

	q.Start(context.Background())
	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))

	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, "extraction blew up", task.Error)
}

func TestDrainRejectsNewWork(t *testing.T) {
	exec := &recordingExecutor{}
	q := NewTaskQueue(exec, Options{MaxDepth: 10, Workers: 2, TaskTimeout: time.Second}, arbor.NewLogger())

	q.Start(context.Background())
	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))

	err := q.Submit(newTask("rejected", "", 0, time.Now()))
	require.Error(t, err)
	var appErr *models.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrKindQueueFull, appErr.Kind)
}

func TestStatsTrackCompletions(t *testing.T) {
	exec := &recordingExecutor{}
	q := NewTaskQueue(exec, Options{MaxDepth: 10, Workers: 2, TaskTimeout: time.Second}, arbor.NewLogger())

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Submit(newTask(fmt.Sprintf("s%d", i), "", 0, time.Now())))
	}

	q.Start(context.Background())
	drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(drainCtx))

	stats := q.Stats()
	assert.Equal(t, 4, stats.TasksCompleted)
	assert.Equal(t, 0, stats.TasksFailed)
	assert.Equal(t, 0, stats.Pending)
	assert.GreaterOrEqual(t, stats.AvgTaskDuration, 0.0)
	assert.Equal(t, 2, stats.Workers)
}
