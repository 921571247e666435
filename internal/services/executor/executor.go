package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/browser"
	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/extractors"
	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
	"github.com/morket/scraper/internal/policies"
)

// Executor runs one scrape task end to end: rate limit, breaker check,
// browser acquire, proxy select, fingerprint, optional credentials,
// navigate, extract, normalize. The page is closed and the browser
// instance released on every exit path.
type Executor struct {
	pool         interfaces.BrowserPool
	fingerprints *browser.FingerprintGenerator
	proxies      interfaces.ProxyManager
	limiter      interfaces.RateLimiter
	breaker      interfaces.CircuitBreaker
	robots       interfaces.RobotsChecker
	credentials  interfaces.CredentialProvider
	registry     *extractors.Registry
	normalizer   *models.Normalizer
	policies     *policies.Store
	navTimeout   time.Duration
	logger       arbor.ILogger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// Deps carries the executor's collaborators. Credentials and Robots may
// be nil; both degrade gracefully.
type Deps struct {
	Pool         interfaces.BrowserPool
	Fingerprints *browser.FingerprintGenerator
	Proxies      interfaces.ProxyManager
	Limiter      interfaces.RateLimiter
	Breaker      interfaces.CircuitBreaker
	Robots       interfaces.RobotsChecker
	Credentials  interfaces.CredentialProvider
	Registry     *extractors.Registry
	Normalizer   *models.Normalizer
	Policies     *policies.Store
	NavTimeout   time.Duration
}

func New(deps Deps, logger arbor.ILogger) *Executor {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Executor{
		pool:         deps.Pool,
		fingerprints: deps.Fingerprints,
		proxies:      deps.Proxies,
		limiter:      deps.Limiter,
		breaker:      deps.Breaker,
		robots:       deps.Robots,
		credentials:  deps.Credentials,
		registry:     deps.Registry,
		normalizer:   deps.Normalizer,
		policies:     deps.Policies,
		navTimeout:   deps.NavTimeout,
		logger:       logger,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Domain extracts the host part of a target URL, falling back to the
// leading path segment when the URL is malformed.
func Domain(targetURL string) string {
	if parsed, err := url.Parse(targetURL); err == nil && parsed.Host != "" {
		return parsed.Hostname()
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(targetURL, "https://"), "http://")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}

// Execute runs the full pipeline for task. The task is mutated in place:
// running on entry, completed or failed on return. The returned result
// is the normalized payload on success.
func (e *Executor) Execute(ctx context.Context, task *models.Task) (interface{}, error) {
	domain := Domain(task.TargetURL)

	started := e.now().UTC()
	task.Status = models.TaskRunning
	task.StartedAt = &started

	result, err := e.run(ctx, task, domain)
	if err != nil {
		if task.Status != models.TaskFailed {
			task.Fail(common.Sanitize(err.Error()))
		}
		return nil, err
	}

	task.Complete(result)
	e.logger.Info().
		Str("task_id", task.ID).
		Str("domain", domain).
		Dur("duration", e.now().Sub(started)).
		Msg("Task completed")
	return result, nil
}

func (e *Executor) run(ctx context.Context, task *models.Task, domain string) (interface{}, error) {
	policy := e.policies.Get(domain)

	if !policy.WithinAllowedHours(e.now()) {
		return nil, models.NewValidationError(
			fmt.Sprintf("domain %s is outside its allowed scrape hours", domain), nil)
	}

	if err := e.limiter.Acquire(ctx, domain); err != nil {
		return nil, err
	}

	// The circuit never saw this request, so a rejection here records no
	// breaker failure.
	if !e.breaker.CanCall(domain) {
		return nil, models.NewCircuitOpenError(fmt.Sprintf("circuit breaker open for domain %s", domain))
	}

	if policy.RespectRobotsTxt && e.robots != nil && !e.robots.Allowed(ctx, task.TargetURL) {
		return nil, models.NewValidationError(
			fmt.Sprintf("robots.txt disallows %s", task.TargetURL), nil)
	}

	handle, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer e.pool.Release(context.Background(), handle)

	proxy, err := e.proxies.Next(domain)
	if err != nil {
		return nil, err
	}

	proxyURL, proxyRegion := "", ""
	if proxy != nil {
		proxyURL, proxyRegion = proxy.URL, proxy.Region
	}

	profile := e.fingerprints.Generate(proxyRegion)

	page, err := handle.NewPage(ctx, proxyURL)
	if err != nil {
		e.recordFailure(domain, proxy)
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close(context.Background())

	if err := e.applyFingerprint(ctx, page, profile); err != nil {
		e.recordFailure(domain, proxy)
		return nil, fmt.Errorf("apply fingerprint: %w", err)
	}

	// Credentials are soft-optional: a missing or failed lookup logs and
	// proceeds without session state.
	e.applyCredentials(ctx, page, task)

	if err := page.Navigate(ctx, task.TargetURL, e.navTimeout); err != nil {
		e.recordFailure(domain, proxy)
		var appErr *models.Error
		if errors.As(err, &appErr) && appErr.Kind == models.ErrKindTaskTimeout {
			return nil, err
		}
		return nil, fmt.Errorf("navigate: %w", err)
	}

	delayMs := e.fingerprints.ActionDelayMs(float64(policy.MinDelayMs), float64(policy.MaxDelayMs))
	e.sleep(ctx, time.Duration(delayMs*float64(time.Millisecond)))

	extractor, err := e.registry.Get(task.TargetType)
	if err != nil {
		e.recordFailure(domain, proxy)
		return nil, err
	}

	raw, err := extractor.Extract(ctx, page, task.TargetURL, task.RequestedFields)
	if err != nil {
		e.recordFailure(domain, proxy)
		return nil, fmt.Errorf("extract: %w", err)
	}

	normalized, err := e.normalizer.Normalize(raw, task.TargetType)
	if err != nil {
		e.recordFailure(domain, proxy)
		return nil, fmt.Errorf("normalize: %w", err)
	}

	e.breaker.RecordSuccess(domain)
	if proxy != nil {
		e.proxies.MarkSuccess(proxy.URL)
	}
	return normalized, nil
}

func (e *Executor) recordFailure(domain string, proxy *models.Proxy) {
	e.breaker.RecordFailure(domain)
	if proxy != nil {
		e.proxies.MarkUnhealthy(proxy.URL)
	}
}

func (e *Executor) applyFingerprint(ctx context.Context, page interfaces.Page, profile models.Fingerprint) error {
	if err := page.SetViewport(ctx, profile.Viewport.Width, profile.Viewport.Height); err != nil {
		return err
	}
	if err := page.SetUserAgent(ctx, profile.UserAgent, profile.AcceptLanguage); err != nil {
		return err
	}
	if err := page.SetTimezone(ctx, profile.Timezone); err != nil {
		return err
	}
	if g := profile.Geolocation; g.Latitude != 0 || g.Longitude != 0 {
		if err := page.SetGeolocation(ctx, g.Latitude, g.Longitude, g.Accuracy); err != nil {
			return err
		}
	}
	return page.AddInitScript(ctx, browser.OverrideScript())
}

func (e *Executor) applyCredentials(ctx context.Context, page interfaces.Page, task *models.Task) {
	if e.credentials == nil || task.WorkspaceID == "" {
		return
	}

	provider := task.TargetType.Provider()
	credential, err := e.credentials.Get(ctx, task.WorkspaceID, provider)
	if err != nil {
		e.logger.Warn().
			Str("task_id", task.ID).
			Str("provider", provider).
			Err(err).
			Msg("Credential retrieval failed, proceeding without session")
		return
	}
	if credential == nil {
		return
	}

	if len(credential.Cookies) > 0 {
		if err := page.SetCookies(ctx, credential.Cookies); err != nil {
			e.logger.Warn().
				Str("task_id", task.ID).
				Str("provider", provider).
				Err(err).
				Msg("Applying session cookies failed, proceeding without session")
		}
	}
}

var _ interfaces.TaskExecutor = (*Executor)(nil)
