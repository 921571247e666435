package proxy

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/models"
)

// healthProbeURL is a known-good endpoint used to verify an unhealthy
// proxy can pass traffic again.
const healthProbeURL = "https://www.gstatic.com/generate_204"

// endpoint is the manager's private per-proxy state.
type endpoint struct {
	raw             string
	region          string
	healthy         bool
	failureCount    int
	successCount    int
	lastUsed        time.Time
	lastUsedDomains map[string]time.Time
}

// Manager rotates upstream proxies round-robin with per-domain cooldown
// and background health restoration. One mutex serializes selection,
// marking, and the health loop.
type Manager struct {
	mu             sync.Mutex
	endpoints      []*endpoint
	cursor         int
	domainCooldown time.Duration
	healthInterval time.Duration
	logger         arbor.ILogger

	stopOnce sync.Once
	stopCh   chan struct{}

	now   func() time.Time
	probe func(ctx context.Context, proxyURL string) bool
}

func NewManager(cfg common.ProxyConfig, logger arbor.ILogger) *Manager {
	if logger == nil {
		logger = common.GetLogger()
	}

	m := &Manager{
		domainCooldown: cfg.DomainCooldown,
		healthInterval: cfg.HealthCheckInterval,
		logger:         logger,
		stopCh:         make(chan struct{}),
		now:            time.Now,
	}
	m.probe = m.probeThroughProxy

	for _, raw := range cfg.Endpoints {
		parsed, err := url.Parse(raw)
		if err != nil {
			logger.Warn().Str("proxy", raw).Err(err).Msg("Skipping unparseable proxy endpoint")
			continue
		}
		// An optional fragment names the egress region: http://host:8080#EU
		region := parsed.Fragment
		parsed.Fragment = ""
		m.endpoints = append(m.endpoints, &endpoint{
			raw:             parsed.String(),
			region:          region,
			healthy:         true,
			lastUsedDomains: make(map[string]time.Time),
		})
	}

	return m
}

// Next selects a proxy for domain. It scans at most len(pool) positions
// from the cursor, skipping unhealthy entries and entries used for this
// domain within the cooldown. The cursor advances even on skips so the
// tail cannot starve. With no proxies configured it returns (nil, nil):
// direct connection.
func (m *Manager) Next(domain string) (*models.Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.endpoints) == 0 {
		return nil, nil
	}

	now := m.now()
	for i := 0; i < len(m.endpoints); i++ {
		e := m.endpoints[m.cursor]
		m.cursor = (m.cursor + 1) % len(m.endpoints)

		if !e.healthy {
			continue
		}
		if used, ok := e.lastUsedDomains[domain]; ok && now.Sub(used) < m.domainCooldown {
			continue
		}

		e.lastUsed = now
		e.lastUsedDomains[domain] = now
		return &models.Proxy{URL: e.raw, Region: e.region, Healthy: true}, nil
	}

	return nil, models.NewNoHealthyProxiesError("")
}

// MarkSuccess records a successful page fetch through the proxy.
func (m *Manager) MarkSuccess(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.find(proxyURL); e != nil {
		e.successCount++
	}
}

// MarkUnhealthy excludes the proxy from selection until the health loop
// restores it.
func (m *Manager) MarkUnhealthy(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.find(proxyURL); e != nil {
		e.healthy = false
		e.failureCount++
		m.logger.Warn().Str("proxy", proxyURL).Int("failures", e.failureCount).Msg("Proxy marked unhealthy")
	}
}

func (m *Manager) find(proxyURL string) *endpoint {
	for _, e := range m.endpoints {
		if e.raw == proxyURL {
			return e
		}
	}
	return nil
}

// Stats snapshots the proxy fleet for the metrics report.
func (m *Manager) Stats() models.ProxyStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := models.ProxyStats{Total: len(m.endpoints)}
	for _, e := range m.endpoints {
		state := models.ProxyState{
			URL:          e.raw,
			Healthy:      e.healthy,
			FailureCount: e.failureCount,
		}
		if !e.lastUsed.IsZero() {
			t := e.lastUsed
			state.LastUsed = &t
		}
		if e.healthy {
			stats.Healthy++
		}
		stats.Proxies = append(stats.Proxies, state)
	}
	return stats
}

// Start launches the background health prober.
func (m *Manager) Start(ctx context.Context) {
	if len(m.endpoints) == 0 {
		return
	}

	common.SafeGoWithContext(ctx, m.logger, "proxyHealthLoop", func() {
		ticker := time.NewTicker(m.healthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.checkUnhealthy(ctx)
			}
		}
	})
}

// Stop halts the health prober.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) checkUnhealthy(ctx context.Context) {
	m.mu.Lock()
	var unhealthy []string
	for _, e := range m.endpoints {
		if !e.healthy {
			unhealthy = append(unhealthy, e.raw)
		}
	}
	m.mu.Unlock()

	for _, raw := range unhealthy {
		if m.probe(ctx, raw) {
			m.mu.Lock()
			if e := m.find(raw); e != nil {
				e.healthy = true
				m.logger.Info().Str("proxy", raw).Msg("Proxy restored to healthy")
			}
			m.mu.Unlock()
		}
	}
}

// probeThroughProxy issues a HEAD request through the proxy to a
// known-good endpoint. Any response with status < 500 counts as healthy.
func (m *Manager) probeThroughProxy(ctx context.Context, proxyURL string) bool {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return false
	}

	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{Proxy: http.ProxyURL(parsed)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, healthProbeURL, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500
}
