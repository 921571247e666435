package resilience

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
)

const robotsUserAgent = "Mozilla/5.0 (compatible; scraper/1.0)"

// robotsEntry caches the parsed rules for one domain. A nil data field
// is the allow-all sentinel stored on any fetch or parse failure.
type robotsEntry struct {
	data    *robotstxt.RobotsData
	expires time.Time
}

// RobotsChecker answers robots.txt queries with a TTL cache. It is
// permissively biased: when in doubt, allow.
type RobotsChecker struct {
	mu      sync.Mutex
	cache   map[string]*robotsEntry
	client  *http.Client
	ttl     time.Duration
	enabled bool
	logger  arbor.ILogger

	now func() time.Time
}

func NewRobotsChecker(cfg common.RobotsConfig, logger arbor.ILogger) *RobotsChecker {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &RobotsChecker{
		cache:   make(map[string]*robotsEntry),
		client:  &http.Client{Timeout: cfg.Timeout},
		ttl:     cfg.CacheTTL,
		enabled: cfg.Enabled,
		logger:  logger,
		now:     time.Now,
	}
}

// Allowed reports whether targetURL may be fetched. Disabled checkers,
// malformed URLs, and fetch failures all answer true.
func (r *RobotsChecker) Allowed(ctx context.Context, targetURL string) bool {
	if !r.enabled {
		return true
	}

	parsed, err := url.Parse(targetURL)
	if err != nil || parsed.Host == "" {
		return true
	}

	data := r.rulesFor(ctx, parsed.Host)
	if data == nil {
		return true
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	return data.FindGroup(robotsUserAgent).Test(path)
}

func (r *RobotsChecker) rulesFor(ctx context.Context, domain string) *robotstxt.RobotsData {
	r.mu.Lock()
	if entry, ok := r.cache[domain]; ok && r.now().Before(entry.expires) {
		r.mu.Unlock()
		return entry.data
	}
	r.mu.Unlock()

	data := r.fetch(ctx, domain)

	r.mu.Lock()
	r.cache[domain] = &robotsEntry{data: data, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()

	return data
}

// fetch retrieves and parses robots.txt. Any failure returns nil, the
// allow-all sentinel.
func (r *RobotsChecker) fetch(ctx context.Context, domain string) *robotstxt.RobotsData {
	robotsURL := fmt.Sprintf("https://%s/robots.txt", domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", robotsUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug().Str("domain", domain).Err(err).Msg("robots.txt fetch failed, allowing all")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Debug().Str("domain", domain).Int("status", resp.StatusCode).Msg("robots.txt unavailable, allowing all")
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		r.logger.Debug().Str("domain", domain).Err(err).Msg("robots.txt unparseable, allowing all")
		return nil
	}
	return data
}

// ClearCache drops every cached robots.txt entry.
func (r *RobotsChecker) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*robotsEntry)
}
