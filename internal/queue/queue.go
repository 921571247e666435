package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
)

// entry is one heap element. Sentinels order strictly after every real
// entry so in-flight work drains before workers exit.
type entry struct {
	task     *models.Task
	sentinel bool
	priority int
	created  time.Time
	seq      uint64
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.sentinel != b.sentinel {
		return !a.sentinel
	}
	if a.sentinel {
		return false
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if !a.created.Equal(b.created) {
		return a.created.Before(b.created)
	}
	return a.seq < b.seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// TaskQueue dispatches tasks to a fixed worker pool in priority order.
// The admission limit is tracked by a separate pending counter because
// the heap length lags during cancellation scans.
type TaskQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	entries   entryHeap
	pending   int
	seq       uint64
	draining  bool
	cancelled map[string]struct{}

	maxDepth    int
	workers     int
	taskTimeout time.Duration

	executor   interfaces.TaskExecutor
	onComplete func(*models.Task)
	logger     arbor.ILogger

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	running          int
	completed        int
	failed           int
	avgDuration      time.Duration
	finishedCount    int
	sentinelsPending int
}

// Options configures a TaskQueue.
type Options struct {
	MaxDepth    int
	Workers     int
	TaskTimeout time.Duration

	// OnComplete fires exactly once per admitted task, after it reaches
	// a terminal status. May be nil.
	OnComplete func(*models.Task)
}

func NewTaskQueue(executor interfaces.TaskExecutor, opts Options, logger arbor.ILogger) *TaskQueue {
	if logger == nil {
		logger = common.GetLogger()
	}
	q := &TaskQueue{
		cancelled:   make(map[string]struct{}),
		maxDepth:    opts.MaxDepth,
		workers:     opts.Workers,
		taskTimeout: opts.TaskTimeout,
		executor:    executor,
		onComplete:  opts.OnComplete,
		logger:      logger,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool. ctx bounds the lifetime of all
// workers and their in-flight tasks.
func (q *TaskQueue) Start(ctx context.Context) {
	q.mu.Lock()
	q.baseCtx, q.cancelBase = context.WithCancel(ctx)
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		worker := i
		q.wg.Add(1)
		common.SafeGo(q.logger, fmt.Sprintf("queue-worker-%d", worker), func() {
			defer q.wg.Done()
			q.workerLoop(worker)
		})
	}
	q.logger.Info().Int("workers", q.workers).Int("max_depth", q.maxDepth).Msg("Task queue started")
}

// Submit enqueues one task. Fails with queue-full when draining or at
// capacity.
func (q *TaskQueue) Submit(task *models.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.admit([]*models.Task{task})
}

// SubmitBatch enqueues all tasks or none.
func (q *TaskQueue) SubmitBatch(tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.admit(tasks)
}

// admit performs the capacity check and insertion. Caller holds q.mu.
func (q *TaskQueue) admit(tasks []*models.Task) error {
	if q.draining {
		return models.NewQueueFullError("queue is shutting down")
	}
	if q.pending+len(tasks) > q.maxDepth {
		return models.NewQueueFullError(fmt.Sprintf("queue depth limit %d reached", q.maxDepth))
	}

	for _, task := range tasks {
		q.seq++
		heap.Push(&q.entries, &entry{
			task:     task,
			priority: task.Priority,
			created:  task.CreatedAt,
			seq:      q.seq,
		})
		q.pending++
	}
	q.cond.Broadcast()
	return nil
}

// CancelJob marks jobID cancelled and fails its queued tasks. Running
// tasks are left alone.
func (q *TaskQueue) CancelJob(jobID string) {
	q.mu.Lock()
	q.cancelled[jobID] = struct{}{}

	var removed []*models.Task
	kept := q.entries[:0]
	for _, e := range q.entries {
		if !e.sentinel && e.task.JobID == jobID {
			removed = append(removed, e.task)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	heap.Init(&q.entries)
	q.pending -= len(removed)
	q.failed += len(removed)
	q.mu.Unlock()

	for _, task := range removed {
		task.Fail("Cancelled")
		q.notifyComplete(task)
	}
	q.logger.Info().Str("job_id", jobID).Int("removed", len(removed)).Msg("Cancelled queued job tasks")
}

// JobCancelled reports whether jobID has been cancelled.
func (q *TaskQueue) JobCancelled(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cancelled[jobID]
	return ok
}

// Drain stops admission, posts one sentinel per worker, and waits for
// the pool to exit. Workers still busy when ctx expires are cancelled;
// their tasks fail through the normal completion path.
func (q *TaskQueue) Drain(ctx context.Context) error {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return nil
	}
	q.draining = true
	for i := 0; i < q.workers; i++ {
		q.seq++
		heap.Push(&q.entries, &entry{sentinel: true, seq: q.seq})
	}
	q.sentinelsPending = q.workers
	q.cond.Broadcast()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info().Msg("Task queue drained")
		return nil
	case <-ctx.Done():
		q.logger.Warn().Msg("Drain timeout reached, cancelling in-flight tasks")
		q.mu.Lock()
		if q.cancelBase != nil {
			q.cancelBase()
		}
		q.cond.Broadcast()
		q.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

// Stats snapshots the queue counters.
func (q *TaskQueue) Stats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return models.QueueStats{
		Pending:          q.pending,
		Running:          q.running,
		Workers:          q.workers,
		TasksCompleted:   q.completed,
		TasksFailed:      q.failed,
		AvgTaskDuration:  q.avgDuration.Seconds(),
		MaxDepth:         q.maxDepth,
		CancelledJobs:    len(q.cancelled),
		SentinelsPending: q.sentinelsPending,
	}
}

func (q *TaskQueue) workerLoop(worker int) {
	for {
		e := q.next()
		if e == nil || e.sentinel {
			q.mu.Lock()
			if e != nil {
				q.sentinelsPending--
			}
			q.mu.Unlock()
			return
		}

		task := e.task

		q.mu.Lock()
		q.pending--
		if _, cancelled := q.cancelled[task.JobID]; cancelled && task.JobID != "" {
			q.failed++
			q.mu.Unlock()
			task.Fail("Cancelled")
			q.notifyComplete(task)
			continue
		}
		q.running++
		base := q.baseCtx
		q.mu.Unlock()

		q.runTask(base, worker, task)
	}
}

// next blocks until an entry is available. Returns nil only when the
// base context is gone during drain cancellation.
func (q *TaskQueue) next() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) == 0 {
		if q.baseCtx != nil && q.baseCtx.Err() != nil {
			return nil
		}
		q.cond.Wait()
	}
	return heap.Pop(&q.entries).(*entry)
}

func (q *TaskQueue) runTask(base context.Context, worker int, task *models.Task) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(base, q.taskTimeout)
	_, err := q.executor.Execute(ctx, task)
	cancel()

	if task.Status != models.TaskCompleted && task.Status != models.TaskFailed {
		switch {
		case base.Err() != nil:
			task.Fail("worker cancelled during drain")
		case ctx.Err() == context.DeadlineExceeded:
			task.Fail(fmt.Sprintf("task timed out after %s", q.taskTimeout))
		case err != nil:
			task.Fail(err.Error())
		default:
			task.Fail("task finished without a result")
		}
	}

	duration := time.Since(start)

	q.mu.Lock()
	q.running--
	q.finishedCount++
	q.avgDuration += (duration - q.avgDuration) / time.Duration(q.finishedCount)
	if task.Status == models.TaskCompleted {
		q.completed++
	} else {
		q.failed++
	}
	q.mu.Unlock()

	if err != nil {
		q.logger.Warn().
			Str("task_id", task.ID).
			Int("worker", worker).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		q.logger.Debug().
			Str("task_id", task.ID).
			Int("worker", worker).
			Dur("duration", duration).
			Msg("Task finished")
	}

	q.notifyComplete(task)
}

func (q *TaskQueue) notifyComplete(task *models.Task) {
	if q.onComplete == nil {
		return
	}
	q.onComplete(task)
}

var _ interfaces.TaskScheduler = (*TaskQueue)(nil)
