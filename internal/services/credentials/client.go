package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
	"github.com/morket/scraper/internal/interfaces"
	"github.com/morket/scraper/internal/models"
)

// cacheEntry pairs a fetched credential with its expiry.
type cacheEntry struct {
	credential *models.Credential
	expires    time.Time
}

// Client fetches workspace credentials from the backend API with an
// in-process TTL cache and exponential-backoff retries. Credential
// values never reach the log stream.
type Client struct {
	baseURL    string
	serviceKey string
	cacheTTL   time.Duration
	maxRetries int
	httpClient *http.Client
	logger     arbor.ILogger

	mu    sync.Mutex
	cache map[string]cacheEntry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewClient(cfg common.BackendConfig, logger arbor.ILogger) *Client {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		serviceKey: cfg.ServiceKey,
		cacheTTL:   cfg.CacheTTL,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		cache:      make(map[string]cacheEntry),
		now:        time.Now,
		sleep: func(ctx context.Context, d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
		},
	}
}

func cacheKey(workspaceID, provider string) string {
	return workspaceID + "/" + provider
}

// Get returns the credential for (workspaceID, provider), serving from
// cache while fresh. A backend 404 surfaces immediately as
// credential-not-found; transport and other HTTP errors retry with
// 2^attempt backoff.
func (c *Client) Get(ctx context.Context, workspaceID, provider string) (*models.Credential, error) {
	key := cacheKey(workspaceID, provider)

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && c.now().Before(entry.expires) {
		c.mu.Unlock()
		c.logger.Debug().Str("workspace_id", workspaceID).Str("provider", provider).Msg("Credential cache hit")
		return entry.credential, nil
	}
	c.mu.Unlock()

	credential, err := c.fetchWithRetries(ctx, workspaceID, provider)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{credential: credential, expires: c.now().Add(c.cacheTTL)}
	c.mu.Unlock()

	return credential, nil
}

// Invalidate drops a cached entry.
func (c *Client) Invalidate(workspaceID, provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, cacheKey(workspaceID, provider))
}

// ClearCache drops every cached credential.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

func (c *Client) fetchWithRetries(ctx context.Context, workspaceID, provider string) (*models.Credential, error) {
	endpoint := fmt.Sprintf("%s/workspaces/%s/credentials/%s", c.baseURL, workspaceID, provider)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		credential, retryable, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			return credential, nil
		}
		if !retryable {
			return nil, err
		}

		lastErr = err
		c.logger.Warn().
			Str("workspace_id", workspaceID).
			Str("provider", provider).
			Int("attempt", attempt+1).
			Int("max_retries", c.maxRetries).
			Err(err).
			Msg("Credential fetch failed, will retry")

		if attempt < c.maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			c.sleep(ctx, backoff)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
	}

	c.logger.Error().
		Str("workspace_id", workspaceID).
		Str("provider", provider).
		Int("attempts", c.maxRetries).
		Msg("Credential fetch retries exhausted")
	return nil, models.NewInternalError(
		fmt.Sprintf("credential fetch for provider %q failed after %d attempts: %v",
			provider, c.maxRetries, lastErr))
}

// fetchOnce performs one backend request. retryable is false for a 404
// and for malformed success bodies.
func (c *Client) fetchOnce(ctx context.Context, endpoint string) (credential *models.Credential, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("X-Service-Key", c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, models.NewCredentialNotFoundError("")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, true, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	parsed, err := decodeCredential(body)
	if err != nil {
		return nil, false, fmt.Errorf("decoding credential response: %w", err)
	}
	return parsed, false, nil
}

// decodeCredential unwraps an optional {data: ...} envelope and decodes
// the credential payload.
func decodeCredential(body []byte) (*models.Credential, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	payload := body
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		payload = envelope.Data
	}

	var credential models.Credential
	if err := json.Unmarshal(payload, &credential); err != nil {
		return nil, err
	}
	return &credential, nil
}

var _ interfaces.CredentialProvider = (*Client)(nil)
