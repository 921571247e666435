package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"

	"github.com/morket/scraper/internal/common"
)

func newTestRobots(enabled bool) *RobotsChecker {
	return NewRobotsChecker(common.RobotsConfig{
		Enabled:  enabled,
		CacheTTL: time.Hour,
		Timeout:  time.Second,
	}, arbor.NewLogger())
}

func seedRules(t *testing.T, r *RobotsChecker, domain, robots string) {
	t.Helper()
	data, err := robotstxt.FromBytes([]byte(robots))
	require.NoError(t, err)
	r.cache[domain] = &robotsEntry{data: data, expires: r.now().Add(time.Hour)}
}

func TestDisabledCheckerAllowsEverything(t *testing.T) {
	r := newTestRobots(false)
	assert.True(t, r.Allowed(context.Background(), "https://example.com/private"))
}

func TestCachedRulesAreConsulted(t *testing.T) {
	r := newTestRobots(true)
	seedRules(t, r, "example.com", "User-agent: *\nDisallow: /private\n")

	assert.False(t, r.Allowed(context.Background(), "https://example.com/private/profile"))
	assert.True(t, r.Allowed(context.Background(), "https://example.com/public"))
	assert.True(t, r.Allowed(context.Background(), "https://example.com"))
}

func TestFetchFailureIsPermissive(t *testing.T) {
	r := newTestRobots(true)

	// Nothing listens on port 1; the connection error must cache the
	// allow-all sentinel rather than deny.
	assert.True(t, r.Allowed(context.Background(), "https://127.0.0.1:1/anything"))

	entry, ok := r.cache["127.0.0.1:1"]
	require.True(t, ok)
	assert.Nil(t, entry.data)
}

func TestMalformedURLAllows(t *testing.T) {
	r := newTestRobots(true)
	assert.True(t, r.Allowed(context.Background(), "not a url"))
}

func TestClearCache(t *testing.T) {
	r := newTestRobots(true)
	seedRules(t, r, "example.com", "User-agent: *\nDisallow: /\n")

	assert.False(t, r.Allowed(context.Background(), "https://example.com/x"))
	r.ClearCache()
	assert.Empty(t, r.cache)
}
