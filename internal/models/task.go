package models

import "time"

// TargetType names a supported scrape page kind. Each value maps to
// exactly one extractor and one output schema.
type TargetType string

const (
	TargetLinkedInProfile TargetType = "linkedin_profile"
	TargetCompanyWebsite  TargetType = "company_website"
	TargetJobPosting      TargetType = "job_posting"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	switch t {
	case TargetLinkedInProfile, TargetCompanyWebsite, TargetJobPosting:
		return true
	}
	return false
}

// Provider returns the credential provider for a target type: everything
// before the first underscore (linkedin_profile -> linkedin).
func (t TargetType) Provider() string {
	s := string(t)
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			return s[:i]
		}
	}
	return s
}

// TaskStatus is the state of an individual scrape task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// JobStatus is the state of a batch scrape job.
type JobStatus string

const (
	JobQueued             JobStatus = "queued"
	JobRunning            JobStatus = "running"
	JobCompleted          JobStatus = "completed"
	JobPartiallyCompleted JobStatus = "partially_completed"
	JobFailed             JobStatus = "failed"
	JobCancelled          JobStatus = "cancelled"
)

// Terminal reports whether the job status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobPartiallyCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Task is the in-memory state of a single scrape task.
//
// Invariants: a completed task has a non-nil Result and empty Error; a
// failed task has a non-empty Error; StartedAt is set iff the task left
// the queued state; CompletedAt is set iff the task is terminal.
type Task struct {
	ID              string      `json:"id"`
	JobID           string      `json:"job_id,omitempty"`
	TargetType      TargetType  `json:"target_type"`
	TargetURL       string      `json:"target_url"`
	RequestedFields []string    `json:"requested_fields,omitempty"`
	WorkspaceID     string      `json:"workspace_id"`
	Status          TaskStatus  `json:"status"`
	Result          interface{} `json:"result,omitempty"`
	Error           string      `json:"error,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	Priority        int         `json:"priority"`
}

// Fail marks the task failed with the given error message.
func (t *Task) Fail(msg string) {
	now := time.Now().UTC()
	t.Status = TaskFailed
	t.Error = msg
	t.CompletedAt = &now
}

// Complete marks the task completed with the given normalized result.
func (t *Task) Complete(result interface{}) {
	now := time.Now().UTC()
	t.Status = TaskCompleted
	t.Result = result
	t.Error = ""
	t.CompletedAt = &now
}

// Job is the in-memory state of a batch scrape job.
//
// Invariants: CompletedTasks+FailedTasks <= TotalTasks; status moves
// monotonically toward a terminal state; counters freeze once terminal.
type Job struct {
	ID             string    `json:"id"`
	TaskIDs        []string  `json:"task_ids"`
	Status         JobStatus `json:"status"`
	TotalTasks     int       `json:"total_tasks"`
	CompletedTasks int       `json:"completed_tasks"`
	FailedTasks    int       `json:"failed_tasks"`
	CallbackURL    string    `json:"callback_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TaskResult is the per-task entry included in job results and webhook
// payloads.
type TaskResult struct {
	TaskID     string      `json:"task_id"`
	TargetType TargetType  `json:"target_type"`
	TargetURL  string      `json:"target_url"`
	Result     interface{} `json:"result"`
}

// JobSummary is the counter block of a webhook payload.
type JobSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
