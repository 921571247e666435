package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/browser"
	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/extractors"
	"github.com/morket/scraper/internal/handlers"
	"github.com/morket/scraper/internal/models"
	"github.com/morket/scraper/internal/policies"
	"github.com/morket/scraper/internal/proxy"
	"github.com/morket/scraper/internal/queue"
	"github.com/morket/scraper/internal/resilience"
	"github.com/morket/scraper/internal/services/credentials"
	"github.com/morket/scraper/internal/services/executor"
	"github.com/morket/scraper/internal/services/jobs"
	"github.com/morket/scraper/internal/services/webhook"
	"github.com/morket/scraper/internal/validators"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	// Domain policy store and request validation
	Policies     *policies.Store
	URLValidator *validators.URLValidator

	// Browser layer
	Driver       *browser.ChromeDriver
	Pool         *browser.Pool
	Fingerprints *browser.FingerprintGenerator

	// Resilience layer
	ProxyManager *proxy.Manager
	RateLimiter  *resilience.TokenBucketLimiter
	Breaker      *resilience.SlidingWindowBreaker
	Robots       *resilience.RobotsChecker

	// External services
	Credentials   *credentials.Client
	WebhookSender *webhook.Sender

	// Task pipeline
	Registry   *extractors.Registry
	Executor   *executor.Executor
	Queue      *queue.TaskQueue
	JobService *jobs.Service

	// HTTP handlers
	ScrapeHandler *handlers.ScrapeHandler
	JobHandler    *handlers.JobHandler
	StatusHandler *handlers.StatusHandler
}

// New wires the application together. Nothing is started yet; Start
// launches the browser pool, proxy prober, and queue workers.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	if logger == nil {
		logger = common.GetLogger()
	}
	a := &App{
		Config: cfg,
		Logger: logger,
	}
	a.ctx, a.cancelCtx = context.WithCancel(context.Background())

	a.Policies = policies.Load(cfg.Policies.Path, logger)
	a.URLValidator = validators.NewURLValidator(cfg.AllowTestURLs())

	a.Driver = browser.NewChromeDriver(cfg.Browser, logger)
	a.Pool = browser.NewPool(a.Driver, cfg.Browser, logger)
	a.Fingerprints = browser.NewFingerprintGenerator(rand.New(rand.NewSource(time.Now().UnixNano())))

	a.ProxyManager = proxy.NewManager(cfg.Proxy, logger)

	a.RateLimiter = resilience.NewTokenBucketLimiter(a.Policies, logger)
	a.Breaker = resilience.NewSlidingWindowBreaker(cfg.Breaker, logger)
	if cfg.Robots.Enabled {
		a.Robots = resilience.NewRobotsChecker(cfg.Robots, logger)
	}

	a.Credentials = credentials.NewClient(cfg.Backend, logger)
	a.WebhookSender = webhook.NewSender(cfg.Webhook, logger)

	a.Registry = extractors.NewDefaultRegistry(logger)

	deps := executor.Deps{
		Pool:         a.Pool,
		Fingerprints: a.Fingerprints,
		Proxies:      a.ProxyManager,
		Limiter:      a.RateLimiter,
		Breaker:      a.Breaker,
		Credentials:  a.Credentials,
		Registry:     a.Registry,
		Normalizer:   models.NewNormalizer(),
		Policies:     a.Policies,
		NavTimeout:   cfg.Browser.NavTimeout,
	}
	if a.Robots != nil {
		deps.Robots = a.Robots
	}
	a.Executor = executor.New(deps, logger)

	// The queue's completion callback targets the job service, which in
	// turn submits to the queue. The callback closes over the late-bound
	// field to break the cycle; Start runs after both exist.
	a.Queue = queue.NewTaskQueue(a.Executor, queue.Options{
		MaxDepth:    cfg.Queue.MaxDepth,
		Workers:     cfg.MaxConcurrency(),
		TaskTimeout: cfg.Queue.TaskTimeout,
		OnComplete: func(task *models.Task) {
			a.JobService.OnTaskComplete(task)
		},
	}, logger)
	a.JobService = jobs.NewService(a.Queue, a.WebhookSender, logger)

	a.ScrapeHandler = handlers.NewScrapeHandler(a.JobService, a.Executor, a.URLValidator, logger)
	a.JobHandler = handlers.NewJobHandler(a.JobService, a.URLValidator, logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Pool, a.Queue, a.ProxyManager, a.Breaker, a.RateLimiter, logger)

	return a, nil
}

// Start launches the browser pool, the proxy health prober, and the
// queue workers.
func (a *App) Start() error {
	if err := a.Driver.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start browser driver: %w", err)
	}
	if err := a.Pool.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start browser pool: %w", err)
	}
	a.ProxyManager.Start(a.ctx)
	a.Queue.Start(a.ctx)

	a.Logger.Info().
		Int("pool_size", a.Config.Browser.PoolSize).
		Int("workers", a.Config.MaxConcurrency()).
		Int("proxies", a.ProxyManager.Stats().Total).
		Msg("Scraper started")
	return nil
}

// Close drains the queue and tears the browser and proxy layers down.
// ctx bounds the whole shutdown.
func (a *App) Close(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down...")

	if err := a.Queue.Drain(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Queue drain did not finish cleanly")
	}
	a.ProxyManager.Stop()
	if err := a.Pool.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Browser pool shutdown failed")
	}
	if err := a.Driver.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Browser driver stop failed")
	}

	a.cancelCtx()
	a.Logger.Info().Msg("Shutdown complete")
	return nil
}
