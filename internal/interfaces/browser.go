package interfaces

import (
	"context"
	"time"

	"github.com/morket/scraper/internal/models"
)

// Page is a single browser tab bound to one scrape task. Implementations
// wrap a live devtools session; tests use in-memory fakes.
type Page interface {
	// Navigate loads url and waits for the load event, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// SetViewport overrides the window dimensions.
	SetViewport(ctx context.Context, width, height int) error

	// SetUserAgent overrides the user agent and Accept-Language header.
	SetUserAgent(ctx context.Context, userAgent, acceptLanguage string) error

	// SetTimezone overrides the reported IANA timezone.
	SetTimezone(ctx context.Context, timezone string) error

	// SetGeolocation overrides the reported position.
	SetGeolocation(ctx context.Context, lat, lon, accuracy float64) error

	// SetCookies installs session cookies before navigation.
	SetCookies(ctx context.Context, cookies []models.Cookie) error

	// AddInitScript registers a script evaluated on every new document
	// before any page script runs.
	AddInitScript(ctx context.Context, script string) error

	// WaitVisible blocks until the selector matches a visible node or
	// the timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Text returns the text content of the first node matching selector.
	// ok is false when nothing matches.
	Text(ctx context.Context, selector string) (text string, ok bool, err error)

	// Attribute returns the named attribute of the first node matching
	// selector. ok is false when the node or attribute is absent.
	Attribute(ctx context.Context, selector, name string) (value string, ok bool, err error)

	// HTML returns the serialized document, used for pattern scans that
	// have no stable selector.
	HTML(ctx context.Context) (string, error)

	// Evaluate runs a JavaScript expression and unmarshals the result
	// into out.
	Evaluate(ctx context.Context, expression string, out interface{}) error

	// Close tears the tab down. Always called, even on failure paths.
	Close(ctx context.Context) error
}

// BrowserHandle is one managed browser process owned by the pool.
type BrowserHandle interface {
	// ID identifies the instance in logs and pool bookkeeping.
	ID() string

	// NewPage opens a tab. A non-empty proxyURL routes the tab's traffic
	// through that proxy.
	NewPage(ctx context.Context, proxyURL string) (Page, error)

	// ClearState wipes cookies and storage between tasks.
	ClearState(ctx context.Context) error

	// OnDisconnect registers a callback fired when the browser process
	// dies outside the pool's control.
	OnDisconnect(fn func())

	// Close terminates the browser process.
	Close(ctx context.Context) error
}

// BrowserDriver launches browser processes. The production driver runs
// headless Chrome; tests substitute a fake.
type BrowserDriver interface {
	Start(ctx context.Context) error
	Launch(ctx context.Context) (BrowserHandle, error)
	Stop() error
}

// BrowserPool hands out warm browser instances to the executor.
type BrowserPool interface {
	Start(ctx context.Context) error
	Acquire(ctx context.Context) (BrowserHandle, error)
	Release(ctx context.Context, handle BrowserHandle)
	Stats() models.PoolStats
	Shutdown(ctx context.Context) error
}
