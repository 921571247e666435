package browser

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
)

// ChromeDriver launches headless Chrome instances through one shared
// exec allocator.
type ChromeDriver struct {
	cfg    common.BrowserConfig
	logger arbor.ILogger

	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func NewChromeDriver(cfg common.BrowserConfig, logger arbor.ILogger) *ChromeDriver {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &ChromeDriver{cfg: cfg, logger: logger}
}

// Start creates the allocator shared by every launched instance.
func (d *ChromeDriver) Start(ctx context.Context) error {
	opts := append([]chromedp.ExecAllocatorOption{},
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if d.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.ExecPath))
	}

	d.allocCtx, d.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return nil
}

// Launch starts one browser process and wires its disconnect watcher.
func (d *ChromeDriver) Launch(ctx context.Context) (interfaces.BrowserHandle, error) {
	browserCtx, cancel := chromedp.NewContext(d.allocCtx)

	// Run with no actions forces the process to start now, so launch
	// failures surface here instead of on first use.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, err
	}

	h := &chromeHandle{
		id:     uuid.New().String(),
		ctx:    browserCtx,
		cancel: cancel,
		logger: d.logger,
	}
	h.watchDisconnect()

	return h, nil
}

// Stop releases the allocator; chromedp reaps the child processes.
func (d *ChromeDriver) Stop() error {
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return nil
}

// chromeHandle is one live Chrome process.
type chromeHandle struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger arbor.ILogger

	mu           sync.Mutex
	closed       bool
	onDisconnect func()
}

func (h *chromeHandle) ID() string { return h.id }

// watchDisconnect fires the registered callback when the browser context
// dies for any reason other than our own Close.
func (h *chromeHandle) watchDisconnect() {
	go func() {
		<-h.ctx.Done()

		h.mu.Lock()
		closed := h.closed
		fn := h.onDisconnect
		h.mu.Unlock()

		if !closed && fn != nil {
			fn()
		}
	}()
}

func (h *chromeHandle) OnDisconnect(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnect = fn
}

// NewPage opens a tab. A non-empty proxyURL creates an isolated browser
// context whose traffic routes through that proxy; the context is
// disposed automatically when the tab detaches.
func (h *chromeHandle) NewPage(ctx context.Context, proxyURL string) (interfaces.Page, error) {
	if proxyURL == "" {
		tabCtx, tabCancel := chromedp.NewContext(h.ctx)
		if err := chromedp.Run(tabCtx); err != nil {
			tabCancel()
			return nil, err
		}
		return newChromePage(tabCtx, tabCancel), nil
	}

	c := chromedp.FromContext(h.ctx)
	executor := cdp.WithExecutor(ctx, c.Browser)

	bctxID, err := target.CreateBrowserContext().
		WithProxyServer(proxyURL).
		WithDisposeOnDetach(true).
		Do(executor)
	if err != nil {
		return nil, err
	}

	tid, err := target.CreateTarget("about:blank").
		WithBrowserContextID(bctxID).
		Do(executor)
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(h.ctx, chromedp.WithTargetID(tid))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, err
	}
	return newChromePage(tabCtx, tabCancel), nil
}

// ClearState wipes cookies across the whole instance.
func (h *chromeHandle) ClearState(ctx context.Context) error {
	return chromedp.Run(h.ctx, network.ClearBrowserCookies())
}

func (h *chromeHandle) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	return nil
}
