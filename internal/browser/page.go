package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
)

// chromePage is one devtools tab implementing interfaces.Page.
type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newChromePage(ctx context.Context, cancel context.CancelFunc) *chromePage {
	return &chromePage{ctx: ctx, cancel: cancel}
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	// The tab context carries the session; the caller's context only
	// contributes cancellation.
	runCtx := p.ctx
	if ctx != nil {
		var cancel context.CancelFunc
		runCtx, cancel = mergeCancel(p.ctx, ctx)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// mergeCancel derives a child of base that is also cancelled when other
// is done.
func mergeCancel(base, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(base)
	go func() {
		select {
		case <-other.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.run(navCtx, chromedp.Navigate(url))
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewTaskTimeoutError(fmt.Sprintf("navigation to %s timed out after %s", url, timeout))
	}
	return err
}

func (p *chromePage) SetViewport(ctx context.Context, width, height int) error {
	return p.run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (p *chromePage) SetUserAgent(ctx context.Context, userAgent, acceptLanguage string) error {
	return p.run(ctx, emulation.SetUserAgentOverride(userAgent).WithAcceptLanguage(acceptLanguage))
}

func (p *chromePage) SetTimezone(ctx context.Context, timezone string) error {
	return p.run(ctx, emulation.SetTimezoneOverride(timezone))
}

func (p *chromePage) SetGeolocation(ctx context.Context, lat, lon, accuracy float64) error {
	return p.run(ctx,
		cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{cdpbrowser.PermissionTypeGeolocation}),
		emulation.SetGeolocationOverride().
			WithLatitude(lat).
			WithLongitude(lon).
			WithAccuracy(accuracy),
	)
}

func (p *chromePage) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	actions := make([]chromedp.Action, 0, len(cookies))
	for _, c := range cookies {
		cookie := c
		actions = append(actions, chromedp.ActionFunc(func(actionCtx context.Context) error {
			setter := network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(cookie.Domain).
				WithHTTPOnly(cookie.HTTPOnly).
				WithSecure(cookie.Secure)
			if cookie.Path != "" {
				setter = setter.WithPath(cookie.Path)
			}
			if cookie.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(cookie.Expires), 0))
				setter = setter.WithExpires(&expires)
			}
			return setter.Do(actionCtx)
		}))
	}
	return p.run(ctx, actions...)
}

func (p *chromePage) AddInitScript(ctx context.Context, script string) error {
	return p.run(ctx, chromedp.ActionFunc(func(actionCtx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(script).Do(actionCtx)
		return err
	}))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Text(ctx context.Context, selector string) (string, bool, error) {
	var result struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	expr := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); return el ? {found: true, value: el.textContent} : {found: false, value: ""}; })()`,
		strconv.Quote(selector),
	)
	if err := p.Evaluate(ctx, expr, &result); err != nil {
		return "", false, err
	}
	return result.Value, result.Found, nil
}

func (p *chromePage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	var result struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	expr := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); const v = el ? el.getAttribute(%s) : null; return v === null ? {found: false, value: ""} : {found: true, value: v}; })()`,
		strconv.Quote(selector), strconv.Quote(name),
	)
	if err := p.Evaluate(ctx, expr, &result); err != nil {
		return "", false, err
	}
	return result.Value, result.Found, nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return p.run(ctx, chromedp.Evaluate(expression, out))
}

func (p *chromePage) Close(ctx context.Context) error {
	p.cancel()
	return nil
}

var _ interfaces.Page = (*chromePage)(nil)
