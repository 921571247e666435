package extractors

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
)

const (
	contentWaitTimeout = 10 * time.Second
	maxScrolls         = 5
	scrollPause        = 300 * time.Millisecond
)

// waitForContent waits for a selector to appear. Absence is logged and
// tolerated; the corresponding fields just come back nil.
func waitForContent(ctx context.Context, page interfaces.Page, selector string, logger arbor.ILogger) {
	if err := page.WaitVisible(ctx, selector, contentWaitTimeout); err != nil {
		if logger == nil {
			logger = common.GetLogger()
		}
		logger.Warn().Str("selector", selector).Msg("Content selector not found before timeout")
	}
}

// scrollForContent scrolls the page incrementally to trigger lazy-loaded
// sections.
func scrollForContent(ctx context.Context, page interfaces.Page) {
	for i := 0; i < maxScrolls; i++ {
		var ignored interface{}
		if err := page.Evaluate(ctx, "window.scrollBy(0, window.innerHeight)", &ignored); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(scrollPause):
		}
	}
}

// textFromSelectors tries each selector in order and returns the first
// non-empty value. Meta tags read the content attribute; mailto: and
// tel: anchors read the href.
func textFromSelectors(ctx context.Context, page interfaces.Page, selectors []string) *string {
	for _, selector := range selectors {
		var value string
		var ok bool
		var err error

		switch {
		case strings.HasPrefix(selector, "meta"):
			value, ok, err = page.Attribute(ctx, selector, "content")
		case strings.HasPrefix(selector, `a[href^="mailto:"]`):
			value, ok, err = page.Attribute(ctx, selector, "href")
			if ok {
				value = strings.SplitN(strings.TrimPrefix(value, "mailto:"), "?", 2)[0]
			}
		case strings.HasPrefix(selector, `a[href^="tel:"]`):
			value, ok, err = page.Attribute(ctx, selector, "href")
			if ok {
				value = strings.TrimPrefix(value, "tel:")
			}
		default:
			value, ok, err = page.Text(ctx, selector)
		}

		if err != nil || !ok {
			continue
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

// jsonLDBlocks returns every ld+json script body on the page.
func jsonLDBlocks(ctx context.Context, page interfaces.Page) []string {
	var blocks []string
	expr := `Array.from(document.querySelectorAll('script[type="application/ld+json"]')).map(el => el.textContent)`
	if err := page.Evaluate(ctx, expr, &blocks); err != nil {
		return nil
	}
	return blocks
}

// firstJSONLD finds the first JSON-LD object on the page whose @type is
// in wanted. Top-level arrays are scanned element-wise.
func firstJSONLD(ctx context.Context, page interfaces.Page, wanted ...string) map[string]interface{} {
	match := func(candidate map[string]interface{}) bool {
		t, _ := candidate["@type"].(string)
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
		return false
	}

	for _, raw := range jsonLDBlocks(ctx, page) {
		var decoded interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			continue
		}

		switch v := decoded.(type) {
		case map[string]interface{}:
			if match(v) {
				return v
			}
		case []interface{}:
			for _, item := range v {
				if obj, ok := item.(map[string]interface{}); ok && match(obj) {
					return obj
				}
			}
		}
	}
	return nil
}

// stringField pulls a trimmed non-empty string out of a JSON-LD object.
func stringField(data map[string]interface{}, key string) *string {
	if v, ok := data[key].(string); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

// wantField reports whether a field was requested. Empty request lists
// mean everything.
func wantField(requested []string, field string) bool {
	if len(requested) == 0 {
		return true
	}
	for _, f := range requested {
		if f == field {
			return true
		}
	}
	return false
}
