package browser

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
)

// staleRetryTimeout bounds the re-acquire when a crashed instance is
// pulled from the available queue.
const staleRetryTimeout = 100 * time.Millisecond

// Pool is a fixed-size pool of browser instances. Availability is a
// buffered channel; a mutex guards the instance indexes.
type Pool struct {
	driver         interfaces.BrowserDriver
	size           int
	pageLimit      int
	acquireTimeout time.Duration
	logger         arbor.ILogger

	mu           sync.Mutex
	all          map[string]interfaces.BrowserHandle
	inUse        map[string]bool
	pages        map[string]int
	available    chan interfaces.BrowserHandle
	pagesTotal   int
	recycled     int
	shuttingDown bool
}

func NewPool(driver interfaces.BrowserDriver, cfg common.BrowserConfig, logger arbor.ILogger) *Pool {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Pool{
		driver:         driver,
		size:           cfg.PoolSize,
		pageLimit:      cfg.PageLimit,
		acquireTimeout: cfg.AcquireTimeout,
		logger:         logger,
		all:            make(map[string]interfaces.BrowserHandle),
		inUse:          make(map[string]bool),
		pages:          make(map[string]int),
		// Headroom: a crashed instance can still occupy a queue slot
		// until the stale guard discards it, while its replacement is
		// already being enqueued.
		available:      make(chan interfaces.BrowserHandle, cfg.PoolSize*2),
	}
}

// Start launches the driver and fills the pool.
func (p *Pool) Start(ctx context.Context) error {
	if err := p.driver.Start(ctx); err != nil {
		return err
	}

	for i := 0; i < p.size; i++ {
		handle, err := p.launch(ctx)
		if err != nil {
			return err
		}
		p.available <- handle
	}

	p.logger.Info().Int("size", p.size).Int("page_limit", p.pageLimit).Msg("Browser pool started")
	return nil
}

// launch creates one instance and registers its crash callback.
func (p *Pool) launch(ctx context.Context) (interfaces.BrowserHandle, error) {
	handle, err := p.driver.Launch(ctx)
	if err != nil {
		return nil, err
	}

	id := handle.ID()
	handle.OnDisconnect(func() { p.handleDisconnect(id) })

	p.mu.Lock()
	p.all[id] = handle
	p.pages[id] = 0
	p.mu.Unlock()

	return handle, nil
}

// handleDisconnect replaces a crashed instance unless the pool is
// shutting down. If the dead instance was sitting in the available
// queue, the stale-instance guard in Acquire discards it.
func (p *Pool) handleDisconnect(id string) {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return
	}
	if _, known := p.all[id]; !known {
		p.mu.Unlock()
		return
	}
	delete(p.all, id)
	delete(p.pages, id)
	wasInUse := p.inUse[id]
	delete(p.inUse, id)
	p.mu.Unlock()

	p.logger.Warn().Str("browser_id", id).Bool("in_use", wasInUse).Msg("Browser disconnected, launching replacement")

	common.SafeGo(p.logger, "browserReplacement", func() {
		handle, err := p.launch(context.Background())
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to launch replacement browser")
			return
		}
		p.available <- handle
	})
}

// Acquire hands out an available instance, failing with pool-exhausted
// after the configured timeout.
func (p *Pool) Acquire(ctx context.Context) (interfaces.BrowserHandle, error) {
	return p.acquire(ctx, p.acquireTimeout)
}

func (p *Pool) acquire(ctx context.Context, timeout time.Duration) (interfaces.BrowserHandle, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case handle := <-p.available:
		p.mu.Lock()
		_, known := p.all[handle.ID()]
		if !known {
			p.mu.Unlock()
			// Crashed while queued; try again briefly.
			return p.acquire(ctx, staleRetryTimeout)
		}
		p.inUse[handle.ID()] = true
		p.mu.Unlock()
		return handle, nil
	case <-ctx.Done():
		return nil, models.NewPoolExhaustedError("")
	case <-timer.C:
		return nil, models.NewPoolExhaustedError("")
	}
}

// Release returns an instance to the pool. Instances at their page limit
// are recycled; instances whose state cannot be cleared are treated as
// compromised and recycled too.
func (p *Pool) Release(ctx context.Context, handle interfaces.BrowserHandle) {
	id := handle.ID()

	p.mu.Lock()
	delete(p.inUse, id)
	if _, known := p.all[id]; !known {
		// Crashed while in use; the disconnect callback already launched
		// a replacement.
		p.mu.Unlock()
		_ = handle.Close(ctx)
		return
	}
	p.pages[id]++
	p.pagesTotal++
	processed := p.pages[id]
	shuttingDown := p.shuttingDown
	p.mu.Unlock()

	if shuttingDown {
		_ = handle.Close(ctx)
		return
	}

	if processed >= p.pageLimit {
		p.recycle(ctx, handle, "page limit reached")
		return
	}

	if err := handle.ClearState(ctx); err != nil {
		p.recycle(ctx, handle, "state clear failed")
		return
	}

	p.available <- handle
}

func (p *Pool) recycle(ctx context.Context, handle interfaces.BrowserHandle, reason string) {
	id := handle.ID()

	p.mu.Lock()
	delete(p.all, id)
	delete(p.pages, id)
	p.recycled++
	p.mu.Unlock()

	_ = handle.Close(ctx)
	p.logger.Info().Str("browser_id", id).Str("reason", reason).Msg("Recycling browser instance")

	replacement, err := p.launch(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to launch replacement browser after recycle")
		return
	}
	p.available <- replacement
}

// Stats snapshots pool occupancy for the metrics report.
func (p *Pool) Stats() models.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return models.PoolStats{
		Size:           p.size,
		Available:      len(p.available),
		InUse:          len(p.inUse),
		PagesProcessed: p.pagesTotal,
		Recycles:       p.recycled,
	}
}

// Shutdown closes every instance and stops the driver.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.shuttingDown = true
	handles := make([]interfaces.BrowserHandle, 0, len(p.all))
	for _, h := range p.all {
		handles = append(handles, h)
	}
	p.all = make(map[string]interfaces.BrowserHandle)
	p.pages = make(map[string]int)
	p.inUse = make(map[string]bool)
	p.mu.Unlock()

	for _, h := range handles {
		_ = h.Close(ctx)
	}

	// Drain anything still queued.
	for {
		select {
		case <-p.available:
		default:
			return p.driver.Stop()
		}
	}
}
