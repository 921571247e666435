package interfaces

import (
	"context"
	"time"

	"github.com/morket/scraper/internal/models"
)

// RateLimiter enforces per-domain request pacing.
type RateLimiter interface {
	// Acquire blocks until a token is available for domain or ctx is done.
	Acquire(ctx context.Context, domain string) error

	// ReduceRate temporarily multiplies the domain's refill rate by
	// factor (0 < factor < 1). The original rate is restored after d.
	ReduceRate(domain string, factor float64, d time.Duration)

	// Rate reports the domain's current refill rate in requests/second.
	Rate(domain string) float64

	// GetStats reports the domain's bucket state. Unknown domains get
	// their policy defaults without a bucket being created.
	GetStats(domain string) models.LimiterStats

	// AllStats snapshots every tracked domain.
	AllStats() map[string]models.LimiterStats
}

// CircuitBreaker tracks per-domain failure rates over a sliding window.
type CircuitBreaker interface {
	// CanCall reports whether a request to domain may proceed. An open
	// breaker whose cooldown has elapsed transitions to half-open and
	// admits one probe.
	CanCall(domain string) bool

	RecordSuccess(domain string)
	RecordFailure(domain string)

	// State returns the domain's current breaker state.
	State(domain string) models.BreakerState

	// AllStates snapshots every tracked domain.
	AllStates() map[string]models.BreakerState
}

// ProxyManager rotates upstream proxies and tracks their health.
type ProxyManager interface {
	// Next selects a healthy, non-cooling proxy for domain, or an error
	// when none qualifies. A manager with no configured proxies returns
	// (nil, nil): direct connection.
	Next(domain string) (*models.Proxy, error)

	MarkSuccess(proxyURL string)
	MarkUnhealthy(proxyURL string)

	Stats() models.ProxyStats

	// Start launches the background health prober; Stop halts it.
	Start(ctx context.Context)
	Stop()
}

// CredentialProvider fetches workspace-scoped credentials with caching.
type CredentialProvider interface {
	Get(ctx context.Context, workspaceID, provider string) (*models.Credential, error)
	Invalidate(workspaceID, provider string)
	ClearCache()
}

// RobotsChecker consults robots.txt for scrape targets.
type RobotsChecker interface {
	// Allowed reports whether targetURL may be fetched. Any failure to
	// obtain or parse robots.txt is treated as allowed.
	Allowed(ctx context.Context, targetURL string) bool
	ClearCache()
}

// WebhookSender delivers signed callback notifications.
type WebhookSender interface {
	Send(ctx context.Context, url string, payload map[string]interface{}) error
}

// TaskExecutor runs one scrape task end to end and returns the
// normalized result.
type TaskExecutor interface {
	Execute(ctx context.Context, task *models.Task) (interface{}, error)
}

// TaskScheduler accepts tasks and runs them on a worker pool in
// priority order.
type TaskScheduler interface {
	Submit(task *models.Task) error

	// SubmitBatch admits all tasks or none: if capacity cannot hold the
	// whole batch, nothing is enqueued.
	SubmitBatch(tasks []*models.Task) error

	CancelJob(jobID string)
	JobCancelled(jobID string) bool
	Stats() models.QueueStats
	Start(ctx context.Context)
	Drain(ctx context.Context) error
}
