package models

// BreakerState is the lifecycle state of a per-domain circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// PoolStats is the browser pool section of the metrics report.
type PoolStats struct {
	Size           int `json:"size"`
	Available      int `json:"available"`
	InUse          int `json:"in_use"`
	PagesProcessed int `json:"pages_processed"`
	Recycles       int `json:"recycles"`
}

// QueueStats is the scheduler section of the metrics report.
type QueueStats struct {
	Pending          int     `json:"pending"`
	Running          int     `json:"running"`
	Workers          int     `json:"workers"`
	TasksCompleted   int     `json:"tasks_completed"`
	TasksFailed      int     `json:"tasks_failed"`
	AvgTaskDuration  float64 `json:"avg_task_duration_seconds"`
	MaxDepth         int     `json:"max_depth"`
	CancelledJobs    int     `json:"cancelled_jobs"`
	SentinelsPending int     `json:"-"`
}

// LimiterStats is the per-domain rate limiter section of the metrics
// report.
type LimiterStats struct {
	CurrentTokens float64 `json:"current_tokens"`
	MaxTokens     float64 `json:"max_tokens"`
	RefillRate    float64 `json:"refill_rate"`
	Reduced       bool    `json:"is_reduced"`
}

// ProxyStats is the proxy manager section of the metrics report.
type ProxyStats struct {
	Total   int          `json:"total"`
	Healthy int          `json:"healthy"`
	Proxies []ProxyState `json:"proxies"`
}

// ServiceStats is the full metrics report returned by GET /metrics.
type ServiceStats struct {
	Pool       PoolStats               `json:"pool"`
	Queue      QueueStats              `json:"queue"`
	Proxies    ProxyStats              `json:"proxies"`
	Breakers   map[string]BreakerState `json:"breakers"`
	RateLimits map[string]LimiterStats `json:"rate_limits"`
}
